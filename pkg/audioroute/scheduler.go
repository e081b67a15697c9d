package audioroute

import (
	"sync"
	"time"
)

// deferredTask отложенная задача под ключом
type deferredTask struct {
	key        string
	generation uint64
	timer      *time.Timer
}

// scheduler управляет отложенными задачами повторного применения маршрута.
//
// Задачи группируются по ключу. Новое планирование под ключом отменяет все
// ожидающие задачи этого ключа и увеличивает поколение. Задача, которая все же
// сработала после отмены, видит устаревшее поколение и ничего не делает.
type scheduler struct {
	mu          sync.Mutex
	tasks       map[string][]*deferredTask
	generations map[string]uint64
	closed      bool
}

func newScheduler() *scheduler {
	return &scheduler{
		tasks:       make(map[string][]*deferredTask),
		generations: make(map[string]uint64),
	}
}

// Replace отменяет задачи ключа и планирует новые с указанными задержками.
// fn получает поколение задачи; актуальность проверяет вызывающий через IsCurrent.
// Возвращает поколение, под которым запланированы задачи.
func (s *scheduler) Replace(key string, delays []time.Duration, fn func(generation uint64)) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked(key)
	gen := s.generations[key] + 1
	s.generations[key] = gen

	if s.closed {
		return gen
	}

	for _, d := range delays {
		task := &deferredTask{key: key, generation: gen}
		task.timer = time.AfterFunc(d, func() {
			s.mu.Lock()
			s.removeLocked(task)
			s.mu.Unlock()
			fn(gen)
		})
		s.tasks[key] = append(s.tasks[key], task)
	}
	return gen
}

// IsCurrent проверяет, что поколение ключа не устарело
func (s *scheduler) IsCurrent(key string, generation uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.generations[key] == generation
}

// Cancel отменяет задачи ключа и делает их поколение устаревшим.
// Возвращает количество остановленных таймеров.
func (s *scheduler) Cancel(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.cancelLocked(key)
	s.generations[key]++
	return n
}

// Pending количество ожидающих задач ключа
func (s *scheduler) Pending(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks[key])
}

// Close отменяет все задачи; дальнейшие Replace ничего не планируют
func (s *scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.tasks {
		s.cancelLocked(key)
	}
	s.closed = true
}

func (s *scheduler) cancelLocked(key string) int {
	stopped := 0
	for _, task := range s.tasks[key] {
		if task.timer.Stop() {
			stopped++
		}
	}
	delete(s.tasks, key)
	return stopped
}

func (s *scheduler) removeLocked(task *deferredTask) {
	list := s.tasks[task.key]
	for i, t := range list {
		if t == task {
			s.tasks[task.key] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(s.tasks[task.key]) == 0 {
		delete(s.tasks, task.key)
	}
}
