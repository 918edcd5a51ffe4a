// Package mp4source reads the video track of an MP4 file into compressed
// samples and a decoder configuration. H.264 samples are converted to
// Annex B with the parameter sets repeated on every keyframe.
package mp4source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Eyevinn/mp4ff/avc"
	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/user/remotevideo/pkg/media"
)

var (
	// ErrNoVideoTrack is returned when the file has no video track.
	ErrNoVideoTrack = errors.New("mp4source: no video track found")
	// ErrUnsupportedCodec is returned for sample entries no decoder handles.
	ErrUnsupportedCodec = errors.New("mp4source: unsupported codec")
)

// nonSyncSampleFlag is sample_is_non_sync_sample in ISO/IEC 14496-12 sample flags.
const nonSyncSampleFlag = 0x00010000

// Source is a fully read video track.
type Source struct {
	Config    media.DecoderConfig
	FrameRate float64
	Duration  time.Duration
	Samples   []*media.CompressedSample
}

// track collects what the sample entry tells us about the video track.
type track struct {
	id        uint32
	timescale uint32
	codec     media.Codec
	size      media.Size
	spsPPS    []byte
	meta      *media.SampleMeta
	picture   media.Rect
}

// Open reads path.
func Open(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read parses a whole MP4 from reader.
func Read(reader io.ReadSeeker) (*Source, error) {
	mp4File, err := mp4.DecodeFile(reader)
	if err != nil {
		return nil, fmt.Errorf("decode mp4: %w", err)
	}

	var (
		samples []*media.CompressedSample
		tr      *track
	)
	if mp4File.IsFragmented() {
		if mp4File.Init == nil || mp4File.Init.Moov == nil {
			return nil, ErrNoVideoTrack
		}
		tr, err = findTrack(mp4File.Init.Moov)
		if err != nil {
			return nil, err
		}
		samples, err = readFragmented(mp4File, tr)
	} else {
		if mp4File.Moov == nil {
			return nil, fmt.Errorf("no moov box found")
		}
		tr, err = findTrack(mp4File.Moov)
		if err != nil {
			return nil, err
		}
		samples, err = readProgressive(mp4File, tr, reader)
	}
	if err != nil {
		return nil, err
	}
	return newSource(tr, samples), nil
}

func newSource(tr *track, samples []*media.CompressedSample) *Source {
	s := &Source{
		Config: media.DecoderConfig{
			Codec:     tr.codec,
			MimeType:  "video/mp4",
			CodedSize: tr.size,
			Picture:   tr.picture,
			ExtraData: tr.spsPPS,
		},
		Samples: samples,
	}
	if tr.meta != nil {
		s.Config.ColorSpace = tr.meta.ColorSpace
	}
	for _, smp := range samples {
		if end := smp.End(); end > s.Duration {
			s.Duration = end
		}
	}
	if s.Duration > 0 {
		s.FrameRate = float64(len(samples)) / s.Duration.Seconds()
	}
	return s
}

// findTrack locates the first video track and reads its sample entry.
func findTrack(moov *mp4.MoovBox) (*track, error) {
	for _, trak := range moov.Traks {
		if trak.Mdia == nil || trak.Mdia.Hdlr == nil || trak.Mdia.Hdlr.HandlerType != "vide" {
			continue
		}
		tr := &track{id: trak.Tkhd.TrackID, timescale: 1000}
		if trak.Mdia.Mdhd != nil && trak.Mdia.Mdhd.Timescale > 0 {
			tr.timescale = trak.Mdia.Mdhd.Timescale
		}
		if trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil || trak.Mdia.Minf.Stbl.Stsd == nil {
			return nil, fmt.Errorf("no sample description found")
		}
		for _, child := range trak.Mdia.Minf.Stbl.Stsd.Children {
			tr.codec = sampleEntryCodec(child.Type())
			if tr.codec == media.CodecUnknown {
				continue
			}
			if vse, ok := child.(*mp4.VisualSampleEntryBox); ok {
				tr.size = media.Size{Width: int(vse.Width), Height: int(vse.Height)}
				if vse.AvcC != nil {
					tr.readAvcC(vse.AvcC)
				}
			}
			return tr, nil
		}
		return nil, fmt.Errorf("%w in track %d", ErrUnsupportedCodec, tr.id)
	}
	return nil, ErrNoVideoTrack
}

func sampleEntryCodec(boxType string) media.Codec {
	switch boxType {
	case "avc1", "avc3":
		return media.CodecH264
	case "vp08":
		return media.CodecVP8
	case "vp09":
		return media.CodecVP9
	case "av01":
		return media.CodecAV1
	}
	return media.CodecUnknown
}

// readAvcC prepares the Annex B parameter sets and reads the picture
// size and color space from the first SPS.
func (tr *track) readAvcC(avcC *mp4.AvcCBox) {
	tr.spsPPS = annexBParameterSets(avcC.SPSnalus, avcC.PPSnalus)
	if len(avcC.SPSnalus) == 0 {
		return
	}
	sps, err := avc.ParseSPSNALUnit(avcC.SPSnalus[0], true)
	if err != nil {
		return
	}
	if sps.Width > 0 && sps.Height > 0 {
		tr.picture = media.Rect{Width: int(sps.Width), Height: int(sps.Height)}
	}
	if sps.VUI != nil {
		if cs := media.ColorSpaceFromMatrix(int(sps.VUI.MatrixCoefficients)); cs != media.ColorSpaceUnknown {
			tr.meta = &media.SampleMeta{ColorSpace: cs}
		}
	}
}

func (tr *track) toDuration(ticks int64) time.Duration {
	return time.Duration(ticks) * time.Second / time.Duration(tr.timescale)
}

// sample builds one compressed sample from the raw track data.
func (tr *track) sample(data []byte, decodeTime uint64, dur uint32, cto int32, keyframe bool, offset int64) *media.CompressedSample {
	s := &media.CompressedSample{
		Data:       data,
		Time:       tr.toDuration(int64(decodeTime) + int64(cto)),
		Duration:   tr.toDuration(int64(dur)),
		DecodeTime: tr.toDuration(int64(decodeTime)),
		Keyframe:   keyframe,
		Offset:     offset,
	}
	if tr.codec == media.CodecH264 {
		annexB := avccToAnnexB(data)
		if keyframe {
			s.Data = make([]byte, 0, len(tr.spsPPS)+len(annexB))
			s.Data = append(s.Data, tr.spsPPS...)
			s.Data = append(s.Data, annexB...)
			s.Meta = tr.meta
		} else {
			s.Data = annexB
		}
	}
	return s
}

func readProgressive(mp4File *mp4.File, tr *track, reader io.ReadSeeker) ([]*media.CompressedSample, error) {
	var stbl *mp4.StblBox
	for _, trak := range mp4File.Moov.Traks {
		if trak.Tkhd.TrackID == tr.id && trak.Mdia != nil && trak.Mdia.Minf != nil {
			stbl = trak.Mdia.Minf.Stbl
			break
		}
	}
	if stbl == nil {
		return nil, fmt.Errorf("no sample table found")
	}
	if stbl.Stsz == nil {
		return nil, fmt.Errorf("no stsz box found")
	}

	syncSamples := make(map[uint32]bool)
	if stbl.Stss != nil {
		for _, sampleNr := range stbl.Stss.SampleNumber {
			syncSamples[sampleNr] = true
		}
	}

	var samples []*media.CompressedSample
	for sampleNr := uint32(1); sampleNr <= stbl.Stsz.SampleNumber; sampleNr++ {
		data, offset, err := getSampleData(stbl, reader, sampleNr)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", sampleNr, err)
		}
		var decodeTime uint64
		var dur uint32
		if stbl.Stts != nil {
			decodeTime, dur = stbl.Stts.GetDecodeTime(sampleNr)
		}
		var cto int32
		if stbl.Ctts != nil {
			cto = stbl.Ctts.GetCompositionTimeOffset(sampleNr)
		}
		keyframe := syncSamples[sampleNr] || len(syncSamples) == 0
		samples = append(samples, tr.sample(data, decodeTime, dur, cto, keyframe, offset))
	}
	return samples, nil
}

func readFragmented(mp4File *mp4.File, tr *track) ([]*media.CompressedSample, error) {
	var trex *mp4.TrexBox
	if mvex := mp4File.Init.Moov.Mvex; mvex != nil {
		for _, t := range mvex.Trexs {
			if t.TrackID == tr.id {
				trex = t
				break
			}
		}
	}

	var samples []*media.CompressedSample
	for _, seg := range mp4File.Segments {
		for _, frag := range seg.Fragments {
			if frag.Moof == nil {
				continue
			}
			hasTrack := false
			for _, traf := range frag.Moof.Trafs {
				if traf.Tfhd.TrackID == tr.id {
					hasTrack = true
				}
			}
			if !hasTrack {
				continue
			}
			full, err := frag.GetFullSamples(trex)
			if err != nil {
				return nil, fmt.Errorf("get samples: %w", err)
			}
			for _, fs := range full {
				keyframe := fs.Flags&nonSyncSampleFlag == 0
				samples = append(samples, tr.sample(fs.Data, fs.DecodeTime, fs.Dur, fs.CompositionTimeOffset, keyframe, 0))
			}
		}
	}
	return samples, nil
}

// getSampleData reads sample data from a progressive MP4 file and returns
// its byte offset.
func getSampleData(stbl *mp4.StblBox, reader io.ReadSeeker, sampleNr uint32) ([]byte, int64, error) {
	if stbl.Stsc == nil {
		return nil, 0, fmt.Errorf("missing stsc box")
	}

	chunkNr, firstSampleInChunk, err := stbl.Stsc.ChunkNrFromSampleNr(int(sampleNr))
	if err != nil {
		return nil, 0, fmt.Errorf("get chunk nr: %w", err)
	}

	var chunkOffset uint64
	switch {
	case stbl.Stco != nil:
		chunkOffset, err = stbl.Stco.GetOffset(chunkNr)
		if err != nil {
			return nil, 0, fmt.Errorf("get chunk offset: %w", err)
		}
	case stbl.Co64 != nil:
		if chunkNr < 1 || chunkNr > len(stbl.Co64.ChunkOffset) {
			return nil, 0, fmt.Errorf("chunk nr out of range")
		}
		chunkOffset = stbl.Co64.ChunkOffset[chunkNr-1]
	default:
		return nil, 0, fmt.Errorf("no stco or co64 box")
	}

	offset := chunkOffset
	for s := uint32(firstSampleInChunk); s < sampleNr; s++ {
		offset += uint64(stbl.Stsz.GetSampleSize(int(s)))
	}

	if _, err := reader.Seek(int64(offset), io.SeekStart); err != nil {
		return nil, 0, fmt.Errorf("seek to sample: %w", err)
	}
	data := make([]byte, stbl.Stsz.GetSampleSize(int(sampleNr)))
	if _, err := io.ReadFull(reader, data); err != nil {
		return nil, 0, fmt.Errorf("read sample: %w", err)
	}
	return data, int64(offset), nil
}
