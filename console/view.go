package console

import (
	"github.com/moyoez/partyline-console/state"
	"github.com/moyoez/partyline-console/telemetry"
	"github.com/moyoez/partyline-console/types"
)

type Badge string

const (
	BadgeRunning Badge = "running"
	BadgeStopped Badge = "stopped"
)

// BadgeFor maps a run flag to its badge.
func BadgeFor(running bool) Badge {
	if running {
		return BadgeRunning
	}
	return BadgeStopped
}

// Meter is a level with its derived display.
type Meter struct {
	DB    *float64          `json:"db"`
	Label string            `json:"label"`
	View  telemetry.Display `json:"view"`
}

func meter(db *float64) Meter {
	return Meter{DB: db, Label: telemetry.FormatDB(db), View: telemetry.LevelToDisplay(db)}
}

type PeerView struct {
	types.PeerInfo
	Meter Meter `json:"meter"`
}

// View is the derived, render-ready form of a snapshot. Every meter goes
// through the same level mapping.
type View struct {
	Snapshot state.Snapshot `json:"state"`

	TxBadge Badge      `json:"tx_badge"`
	RxBadge Badge      `json:"rx_badge"`
	Mix     Meter      `json:"mix"`
	Mic     Meter      `json:"mic"`
	Peers   []PeerView `json:"peers"`

	TxSource   types.TxSourceKind `json:"tx_source"`
	SineFreq   *int               `json:"tx_sine_freq,omitempty"`  // only while the sine is selected
	MicDevice  *string            `json:"tx_mic_device,omitempty"` // only while the mic is selected
	RxSinkMode types.RxSinkMode   `json:"rx_sink_mode"`
	RxSinkPath *string            `json:"rx_sink_path,omitempty"` // only while the file sink is selected
}

func BuildView(snap state.Snapshot) View {
	v := View{
		Snapshot:   snap,
		TxBadge:    BadgeFor(snap.Status.TxRunning),
		RxBadge:    BadgeFor(snap.Status.RxRunning),
		Mix:        meter(snap.MixLevelDB),
		Mic:        meter(snap.MicLevel.DB),
		Peers:      make([]PeerView, 0, len(snap.Peers)),
		TxSource:   snap.Config.TxKind(),
		RxSinkMode: snap.Config.SinkMode(),
	}
	for _, p := range snap.Peers {
		v.Peers = append(v.Peers, PeerView{PeerInfo: p, Meter: meter(p.LevelDB)})
	}
	switch tx := snap.Config.TX.(type) {
	case types.SineSource:
		freq := tx.Freq
		v.SineFreq = &freq
	case types.MicSource:
		dev := tx.Device
		v.MicDevice = &dev
	}
	if f, ok := snap.Config.RxSink.(types.FileSink); ok {
		path := f.Path
		v.RxSinkPath = &path
	}
	return v
}

// View returns the render-ready state of the session.
func (s *Session) View() View {
	return BuildView(s.Store.Snapshot())
}
