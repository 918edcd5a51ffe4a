package actor

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/user/remotevideo/pkg/decoder"
	"github.com/user/remotevideo/pkg/media"
	"github.com/user/remotevideo/pkg/transfer"
)

// Message type discriminants.
const (
	TypeConstruct        = "construct"
	TypeConstructReply   = "construct_reply"
	TypeInput            = "input"
	TypeInputExhausted   = "input_exhausted"
	TypeOutput           = "output"
	TypeDrain            = "drain"
	TypeDrainComplete    = "drain_complete"
	TypeFlush            = "flush"
	TypeFlushComplete    = "flush_complete"
	TypeSetSeekThreshold = "set_seek_threshold"
	TypeError            = "error"
	TypeDestroy          = "destroy"
	TypeTextureRelease   = "texture_release"
)

// Message is a protocol message addressed to one actor.
type Message interface {
	MessageType() string
}

// Construct asks the parent to create a decoder.
type Construct struct {
	Config     ConfigData               `msgpack:"config"`
	FrameRate  float64                  `msgpack:"frame_rate"`
	Options    uint32                   `msgpack:"options"`
	Capability media.HardwareCapability `msgpack:"capability"`
}

// ConstructReply answers Construct.
type ConstructReply struct {
	Success      bool   `msgpack:"success"`
	DeniedModern string `msgpack:"denied_modern"`
	DeniedLegacy string `msgpack:"denied_legacy"`
	Error        string `msgpack:"error"`
}

// Input carries one compressed sample.
type Input struct {
	Sample SampleData `msgpack:"sample"`
}

// InputExhausted reports that an Input was fully decoded. One is sent per
// Input, after the Outputs it produced.
type InputExhausted struct{}

// Output carries one decoded frame.
type Output struct {
	Frame FrameData `msgpack:"frame"`
}

// Drain asks for every buffered frame.
type Drain struct{}

// DrainComplete follows the Outputs produced by a Drain.
type DrainComplete struct{}

// Flush discards buffered decoder state.
type Flush struct{}

// FlushComplete answers Flush.
type FlushComplete struct{}

// SetSeekThreshold drops frames that end before Time.
type SetSeekThreshold struct {
	Time int64 `msgpack:"time_us"`
}

// DecoderError reports that the parent decoder can no longer be used.
type DecoderError struct {
	Kind        string `msgpack:"kind"`
	Description string `msgpack:"description"`
}

// Destroy tears down the actor pair.
type Destroy struct{}

// TextureRelease tells the parent the child dropped a texture.
type TextureRelease struct {
	ID uint64 `msgpack:"id"`
}

func (*Construct) MessageType() string        { return TypeConstruct }
func (*ConstructReply) MessageType() string   { return TypeConstructReply }
func (*Input) MessageType() string            { return TypeInput }
func (*InputExhausted) MessageType() string   { return TypeInputExhausted }
func (*Output) MessageType() string           { return TypeOutput }
func (*Drain) MessageType() string            { return TypeDrain }
func (*DrainComplete) MessageType() string    { return TypeDrainComplete }
func (*Flush) MessageType() string            { return TypeFlush }
func (*FlushComplete) MessageType() string    { return TypeFlushComplete }
func (*SetSeekThreshold) MessageType() string { return TypeSetSeekThreshold }
func (*DecoderError) MessageType() string     { return TypeError }
func (*Destroy) MessageType() string          { return TypeDestroy }
func (*TextureRelease) MessageType() string   { return TypeTextureRelease }

// ConfigData is the wire form of media.DecoderConfig.
type ConfigData struct {
	Codec              string `msgpack:"codec"`
	MimeType           string `msgpack:"mime_type"`
	CodedWidth         int    `msgpack:"coded_width"`
	CodedHeight        int    `msgpack:"coded_height"`
	DisplayWidth       int    `msgpack:"display_width"`
	DisplayHeight      int    `msgpack:"display_height"`
	Picture            [4]int `msgpack:"picture"`
	ColorSpace         int    `msgpack:"color_space"`
	LowLatency         bool   `msgpack:"low_latency"`
	HardwareDisallowed bool   `msgpack:"hardware_disallowed"`
	ExtraData          []byte `msgpack:"extra_data,omitempty"`
}

func configData(c media.DecoderConfig) ConfigData {
	return ConfigData{
		Codec:              string(c.Codec),
		MimeType:           c.MimeType,
		CodedWidth:         c.CodedSize.Width,
		CodedHeight:        c.CodedSize.Height,
		DisplayWidth:       c.DisplaySize.Width,
		DisplayHeight:      c.DisplaySize.Height,
		Picture:            [4]int{c.Picture.X, c.Picture.Y, c.Picture.Width, c.Picture.Height},
		ColorSpace:         int(c.ColorSpace),
		LowLatency:         c.LowLatency,
		HardwareDisallowed: c.HardwareDisallowed,
		ExtraData:          c.ExtraData,
	}
}

func (d ConfigData) config() media.DecoderConfig {
	return media.DecoderConfig{
		Codec:              media.ParseCodec(d.Codec),
		MimeType:           d.MimeType,
		CodedSize:          media.Size{Width: d.CodedWidth, Height: d.CodedHeight},
		DisplaySize:        media.Size{Width: d.DisplayWidth, Height: d.DisplayHeight},
		Picture:            media.Rect{X: d.Picture[0], Y: d.Picture[1], Width: d.Picture[2], Height: d.Picture[3]},
		ColorSpace:         media.ColorSpace(d.ColorSpace),
		LowLatency:         d.LowLatency,
		HardwareDisallowed: d.HardwareDisallowed,
		ExtraData:          d.ExtraData,
	}
}

func constructMessage(p decoder.Params) *Construct {
	return &Construct{
		Config:     configData(p.Config),
		FrameRate:  p.FrameRate,
		Options:    uint32(p.Options),
		Capability: p.Capability,
	}
}

func (m *Construct) params() decoder.Params {
	return decoder.Params{
		Config:     m.Config.config(),
		FrameRate:  m.FrameRate,
		Options:    media.Options(m.Options),
		Capability: m.Capability,
	}
}

// SampleData is the wire form of media.CompressedSample. Times are in
// microseconds.
type SampleData struct {
	Data       []byte `msgpack:"data"`
	Time       int64  `msgpack:"time_us"`
	Duration   int64  `msgpack:"duration_us"`
	DecodeTime int64  `msgpack:"decode_time_us"`
	Keyframe   bool   `msgpack:"keyframe"`
	Offset     int64  `msgpack:"offset"`
	ColorSpace int    `msgpack:"color_space,omitempty"`
}

func sampleData(s *media.CompressedSample) SampleData {
	d := SampleData{
		Data:       s.Data,
		Time:       s.Time.Microseconds(),
		Duration:   s.Duration.Microseconds(),
		DecodeTime: s.DecodeTime.Microseconds(),
		Keyframe:   s.Keyframe,
		Offset:     s.Offset,
	}
	if s.Meta != nil {
		d.ColorSpace = int(s.Meta.ColorSpace)
	}
	return d
}

func (d SampleData) sample() *media.CompressedSample {
	s := &media.CompressedSample{
		Data:       d.Data,
		Time:       usec(d.Time),
		Duration:   usec(d.Duration),
		DecodeTime: usec(d.DecodeTime),
		Keyframe:   d.Keyframe,
		Offset:     d.Offset,
	}
	if d.ColorSpace != 0 {
		s.Meta = &media.SampleMeta{ColorSpace: media.ColorSpace(d.ColorSpace)}
	}
	return s
}

func usec(v int64) time.Duration {
	return time.Duration(v) * time.Microsecond
}

// FrameData is the wire form of media.DecodedFrame. Exactly one of Planar
// and Texture is set.
type FrameData struct {
	Time     int64  `msgpack:"time_us"`
	Duration int64  `msgpack:"duration_us"`
	Timecode int64  `msgpack:"timecode_us"`
	Keyframe bool   `msgpack:"keyframe"`
	Offset   int64  `msgpack:"offset"`
	Display  [2]int `msgpack:"display"`
	Picture  [4]int `msgpack:"picture"`

	Planar  *PlanarData                 `msgpack:"planar,omitempty"`
	Texture *transfer.TextureDescriptor `msgpack:"texture,omitempty"`
}

// PlanarData describes pixels in a transfer region.
type PlanarData struct {
	Format     int       `msgpack:"format"`
	Planes     [3][5]int `msgpack:"planes"`
	ColorDepth int       `msgpack:"color_depth"`
	ColorSpace int       `msgpack:"color_space"`
	Region     string    `msgpack:"region"`
	Size       int       `msgpack:"size"`

	// region travels with the message on in-process links.
	region transfer.Region
}

func frameData(f *media.DecodedFrame) FrameData {
	return FrameData{
		Time:     f.Time.Microseconds(),
		Duration: f.Duration.Microseconds(),
		Timecode: f.Timecode.Microseconds(),
		Keyframe: f.Keyframe,
		Offset:   f.Offset,
		Display:  [2]int{f.Display.Width, f.Display.Height},
		Picture:  [4]int{f.Picture.X, f.Picture.Y, f.Picture.Width, f.Picture.Height},
	}
}

func (d FrameData) frame(payload media.FramePayload) *media.DecodedFrame {
	return &media.DecodedFrame{
		Time:     usec(d.Time),
		Duration: usec(d.Duration),
		Timecode: usec(d.Timecode),
		Keyframe: d.Keyframe,
		Offset:   d.Offset,
		Display:  media.Size{Width: d.Display[0], Height: d.Display[1]},
		Picture:  media.Rect{X: d.Picture[0], Y: d.Picture[1], Width: d.Picture[2], Height: d.Picture[3]},
		Payload:  payload,
	}
}

func planarData(buf *media.PlanarBuffer, region transfer.Region) *PlanarData {
	d := &PlanarData{
		Format:     int(buf.Format),
		ColorDepth: int(buf.ColorDepth),
		ColorSpace: int(buf.ColorSpace),
		Region:     region.Name(),
		Size:       region.Len(),
		region:     region,
	}
	for i, p := range buf.Planes {
		d.Planes[i] = [5]int{p.Offset, p.Stride, p.Width, p.Height, p.Skip}
	}
	return d
}

func (d *PlanarData) buffer(m media.Memory) *media.PlanarBuffer {
	buf := &media.PlanarBuffer{
		Format:     media.PixelFormat(d.Format),
		ColorDepth: media.ColorDepth(d.ColorDepth),
		ColorSpace: media.ColorSpace(d.ColorSpace),
		Memory:     m,
	}
	for i, p := range d.Planes {
		buf.Planes[i] = media.Plane{Offset: p[0], Stride: p[1], Width: p[2], Height: p[3], Skip: p[4]}
	}
	return buf
}

// envelope is the encoded form of every message: a map with a type key,
// the addressed actor and the message body.
type envelope struct {
	Type    string             `msgpack:"type"`
	ActorID uint64             `msgpack:"actor"`
	Body    msgpack.RawMessage `msgpack:"body"`
}

// EncodeMessage encodes msg for actorID.
func EncodeMessage(actorID uint64, msg Message) ([]byte, error) {
	body, err := msgpack.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("actor: encode %s: %w", msg.MessageType(), err)
	}
	return msgpack.Marshal(&envelope{Type: msg.MessageType(), ActorID: actorID, Body: body})
}

// DecodeMessage decodes a payload written by EncodeMessage.
func DecodeMessage(payload []byte) (uint64, Message, error) {
	var env envelope
	if err := msgpack.Unmarshal(payload, &env); err != nil {
		return 0, nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode envelope", Err: err}
	}
	msg := newMessage(env.Type)
	if msg == nil {
		return env.ActorID, nil, &FrameError{Kind: FrameErrorDecode, Msg: fmt.Sprintf("unknown message type %q", env.Type)}
	}
	if err := msgpack.Unmarshal(env.Body, msg); err != nil {
		return env.ActorID, nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode " + env.Type, Err: err}
	}
	return env.ActorID, msg, nil
}

func newMessage(typ string) Message {
	switch typ {
	case TypeConstruct:
		return &Construct{}
	case TypeConstructReply:
		return &ConstructReply{}
	case TypeInput:
		return &Input{}
	case TypeInputExhausted:
		return &InputExhausted{}
	case TypeOutput:
		return &Output{}
	case TypeDrain:
		return &Drain{}
	case TypeDrainComplete:
		return &DrainComplete{}
	case TypeFlush:
		return &Flush{}
	case TypeFlushComplete:
		return &FlushComplete{}
	case TypeSetSeekThreshold:
		return &SetSeekThreshold{}
	case TypeError:
		return &DecoderError{}
	case TypeDestroy:
		return &Destroy{}
	case TypeTextureRelease:
		return &TextureRelease{}
	}
	return nil
}
