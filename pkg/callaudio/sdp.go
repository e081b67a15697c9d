package callaudio

import (
	"errors"
	"fmt"
	"time"

	"github.com/pion/sdp/v3"
)

// ErrNoAudio в offer нет активного аудио потока
var ErrNoAudio = errors.New("в SDP нет аудио потока")

// parseOffer разбирает SDP offer. Пустое тело означает отложенный offer.
func parseOffer(body []byte) (*sdp.SessionDescription, error) {
	if len(body) == 0 {
		return nil, nil
	}
	offer := &sdp.SessionDescription{}
	if err := offer.Unmarshal(body); err != nil {
		return nil, fmt.Errorf("не удалось разобрать SDP: %w", err)
	}
	return offer, nil
}

// hasAudio true если offer содержит аудио поток с ненулевым портом.
// Звонок без SDP считается голосовым.
func hasAudio(offer *sdp.SessionDescription) bool {
	if offer == nil {
		return true
	}
	return audioMedia(offer) != nil
}

func audioMedia(offer *sdp.SessionDescription) *sdp.MediaDescription {
	for _, md := range offer.MediaDescriptions {
		if md.MediaName.Media == "audio" && md.MediaName.Port.Value != 0 {
			return md
		}
	}
	return nil
}

// buildAnswer формирует SDP answer на аудио поток offer.
// Форматы принимаются как есть; медиа не обрабатывается, адрес и порт
// берутся из конфигурации.
func buildAnswer(offer *sdp.SessionDescription, host string, port int) ([]byte, error) {
	answer := &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      uint64(time.Now().UnixNano()),
			SessionVersion: 1,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: host,
		},
		SessionName: "audiorouted",
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: host},
		},
		TimeDescriptions: []sdp.TimeDescription{
			{Timing: sdp.Timing{StartTime: 0, StopTime: 0}},
		},
	}

	formats := []string{"0", "8"}
	var attrs []sdp.Attribute
	if offer != nil {
		md := audioMedia(offer)
		if md == nil {
			return nil, ErrNoAudio
		}
		formats = md.MediaName.Formats
		for _, a := range md.Attributes {
			if a.Key == "rtpmap" || a.Key == "fmtp" || a.Key == "ptime" {
				attrs = append(attrs, a)
			}
		}
	}
	attrs = append(attrs, sdp.Attribute{Key: "sendrecv"})

	answer.MediaDescriptions = []*sdp.MediaDescription{
		{
			MediaName: sdp.MediaName{
				Media:   "audio",
				Port:    sdp.RangedPort{Value: port},
				Protos:  []string{"RTP", "AVP"},
				Formats: formats,
			},
			Attributes: attrs,
		},
	}

	return answer.Marshal()
}
