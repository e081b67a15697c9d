package callaudio

import (
	"testing"

	"github.com/pion/sdp/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const audioOffer = "v=0\r\n" +
	"o=alice 2890844526 2890844526 IN IP4 192.168.1.10\r\n" +
	"s=-\r\n" +
	"c=IN IP4 192.168.1.10\r\n" +
	"t=0 0\r\n" +
	"m=audio 49170 RTP/AVP 0 101\r\n" +
	"a=rtpmap:0 PCMU/8000\r\n" +
	"a=rtpmap:101 telephone-event/8000\r\n" +
	"a=sendrecv\r\n"

const videoOnlyOffer = "v=0\r\n" +
	"o=alice 1 1 IN IP4 192.168.1.10\r\n" +
	"s=-\r\n" +
	"c=IN IP4 192.168.1.10\r\n" +
	"t=0 0\r\n" +
	"m=audio 0 RTP/AVP 0\r\n" +
	"m=video 51372 RTP/AVP 96\r\n" +
	"a=rtpmap:96 H264/90000\r\n"

func TestParseOffer(t *testing.T) {
	offer, err := parseOffer([]byte(audioOffer))
	require.NoError(t, err)
	assert.True(t, hasAudio(offer))

	offer, err = parseOffer([]byte(videoOnlyOffer))
	require.NoError(t, err)
	assert.False(t, hasAudio(offer), "отклоненный аудио поток (порт 0) не считается")

	offer, err = parseOffer(nil)
	require.NoError(t, err)
	assert.Nil(t, offer)
	assert.True(t, hasAudio(offer), "отложенный offer считается голосовым")

	_, err = parseOffer([]byte("not sdp"))
	assert.Error(t, err)
}

func TestBuildAnswer(t *testing.T) {
	offer, err := parseOffer([]byte(audioOffer))
	require.NoError(t, err)

	body, err := buildAnswer(offer, "10.0.0.1", 40000)
	require.NoError(t, err)

	answer := &sdp.SessionDescription{}
	require.NoError(t, answer.Unmarshal(body))
	require.Len(t, answer.MediaDescriptions, 1)

	md := answer.MediaDescriptions[0]
	assert.Equal(t, "audio", md.MediaName.Media)
	assert.Equal(t, 40000, md.MediaName.Port.Value)
	assert.Equal(t, []string{"0", "101"}, md.MediaName.Formats)
	assert.Equal(t, "10.0.0.1", answer.ConnectionInformation.Address.Address)

	_, ok := md.Attribute("sendrecv")
	assert.True(t, ok)
}

func TestBuildAnswerWithoutOffer(t *testing.T) {
	body, err := buildAnswer(nil, "127.0.0.1", 40000)
	require.NoError(t, err)

	answer := &sdp.SessionDescription{}
	require.NoError(t, answer.Unmarshal(body))
	assert.Equal(t, []string{"0", "8"}, answer.MediaDescriptions[0].MediaName.Formats)
}

func TestBuildAnswerNoAudio(t *testing.T) {
	offer, err := parseOffer([]byte(videoOnlyOffer))
	require.NoError(t, err)

	_, err = buildAnswer(offer, "127.0.0.1", 40000)
	assert.ErrorIs(t, err, ErrNoAudio)
}
