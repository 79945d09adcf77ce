// Package persist writes the two records kept per reading: the history
// record for the sampling instant and the latest-state record of the cooking
// session.
package persist

import (
	"context"
	"fmt"

	configpkg "github.com/drblury/cookflow/internal/runtime/config"
	errspkg "github.com/drblury/cookflow/internal/runtime/errors"
	"github.com/drblury/cookflow/internal/runtime/logging"
	"github.com/drblury/cookflow/internal/runtime/provision"
	"github.com/drblury/cookflow/internal/runtime/reading"
	"github.com/drblury/cookflow/internal/runtime/tablestore"
)

// Record names reported in PersistError.
const (
	RecordHistory = "history"
	RecordState   = "state"
)

// Property names on stored entities.
const (
	PropChamberTarget = "chamber_target"
	PropCookerOn      = "cooker_on"
	PropReadings      = "readings"
	PropTime          = "time"
	PropStartTime     = "start_time"
	PropLastTime      = "last_time"
)

// Options selects table names and the record policies.
type Options struct {
	HistoryTable   string
	StateTable     string
	HistoryKeying  string
	StartTime      string
	StrictLastTime bool
}

func (o Options) withDefaults() Options {
	if o.HistoryTable == "" {
		o.HistoryTable = configpkg.DefaultHistoryTable
	}
	if o.StateTable == "" {
		o.StateTable = configpkg.DefaultStateTable
	}
	if o.HistoryKeying == "" {
		o.HistoryKeying = configpkg.HistoryKeyingSession
	}
	if o.StartTime == "" {
		o.StartTime = configpkg.StartTimeOrigin
	}
	return o
}

// OptionsFromConfig picks the record settings out of the service config.
func OptionsFromConfig(cfg *configpkg.Config) Options {
	return Options{
		HistoryTable:   cfg.HistoryTable,
		StateTable:     cfg.StateTable,
		HistoryKeying:  cfg.HistoryKeying,
		StartTime:      cfg.StartTimePolicy,
		StrictLastTime: cfg.StrictLastTime,
	}.withDefaults()
}

// stateInput is what the state mapper needs: the event plus, when a policy
// requires it, the record currently stored for the session.
type stateInput struct {
	event  *reading.Event
	stored *tablestore.Entity
}

// Writer persists readings.
type Writer struct {
	opts    Options
	history *Upserter[*reading.Event]
	state   *Upserter[stateInput]
	logger  logging.ServiceLogger
}

// NewWriter builds a writer over store. cache records which tables exist and
// may be shared with other writers or processes.
func NewWriter(store tablestore.Store, cache provision.Cache, opts Options, logger logging.ServiceLogger) *Writer {
	if logger == nil {
		logger = logging.NewNopServiceLogger()
	}
	opts = opts.withDefaults()
	tables := provision.New[tablestore.Table](provision.KindTable, tablestore.Backend{Store: store}, cache, logger)

	w := &Writer{opts: opts, logger: logger}
	w.history = NewUpserter[*reading.Event](RecordHistory, opts.HistoryTable, tables, w.historyEntity)
	w.state = NewUpserter[stateInput](RecordState, opts.StateTable, tables, w.stateEntity)
	return w
}

// Options returns the effective options after defaults.
func (w *Writer) Options() Options { return w.opts }

// Persist writes the history record and then the latest-state record,
// stopping at the first failure.
func (w *Writer) Persist(ctx context.Context, ev *reading.Event) error {
	if err := w.PersistHistory(ctx, ev); err != nil {
		return err
	}
	return w.PersistState(ctx, ev)
}

// PersistHistory upserts the history record for the event.
func (w *Writer) PersistHistory(ctx context.Context, ev *reading.Event) error {
	if ev == nil {
		return errspkg.ErrEventRequired
	}
	return w.history.Upsert(ctx, ev)
}

// PersistState upserts the latest-state record of the event's session.
func (w *Writer) PersistState(ctx context.Context, ev *reading.Event) error {
	if ev == nil {
		return errspkg.ErrEventRequired
	}

	in := stateInput{event: ev}
	if w.opts.StrictLastTime || w.opts.StartTime == configpkg.StartTimeFirstSeen {
		stored, found, err := w.state.Lookup(ctx, ev.DeviceID, ev.CookID)
		if err != nil {
			return err
		}
		if found {
			in.stored = &stored
		}
	}

	if w.opts.StrictLastTime && in.stored != nil {
		if last := in.stored.String(PropLastTime); last != "" && ev.Time < last {
			w.logger.Debug("Skipping state write for out-of-order reading", logging.LogFields{
				"device_id": ev.DeviceID,
				"cook_id":   ev.CookID,
				"time":      ev.Time,
				"last_time": last,
			})
			return nil
		}
	}

	return w.state.Upsert(ctx, in)
}

func (w *Writer) historyEntity(ev *reading.Event) (tablestore.Entity, error) {
	samples, err := reading.EncodeSamples(ev.Readings)
	if err != nil {
		return tablestore.Entity{}, fmt.Errorf("encode readings: %w", err)
	}
	props := map[string]any{
		PropChamberTarget: ev.ChamberTarget,
		PropCookerOn:      ev.CookerOn,
		PropReadings:      samples,
	}

	switch w.opts.HistoryKeying {
	case configpkg.HistoryKeyingDevice:
		props[PropTime] = ev.Time
		return tablestore.Entity{PartitionKey: ev.DeviceID, RowKey: ev.CookID, Properties: props}, nil
	default:
		return tablestore.Entity{PartitionKey: ev.SessionKey(), RowKey: ev.Time, Properties: props}, nil
	}
}

func (w *Writer) stateEntity(in stateInput) (tablestore.Entity, error) {
	ev := in.event
	return tablestore.Entity{
		PartitionKey: ev.DeviceID,
		RowKey:       ev.CookID,
		Properties: map[string]any{
			PropStartTime: w.startTime(in),
			PropLastTime:  ev.Time,
		},
	}, nil
}

func (w *Writer) startTime(in stateInput) string {
	ev := in.event
	switch w.opts.StartTime {
	case configpkg.StartTimeEvent:
		return ev.Time
	case configpkg.StartTimeFirstSeen:
		if in.stored != nil {
			if prev := in.stored.String(PropStartTime); prev != "" {
				return prev
			}
		}
		if ev.CookStartTime != "" {
			return ev.CookStartTime
		}
		return ev.Time
	default:
		return ev.CookStartTime
	}
}
