package service_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/factorlens/internal/adapters/artifact"
	service "github.com/okian/factorlens/internal/app"
	"github.com/okian/factorlens/internal/domain/counterfactual"
	"github.com/okian/factorlens/internal/domain/dedupe"
	"github.com/okian/factorlens/internal/domain/encoding"
	"github.com/okian/factorlens/internal/domain/model"
	"github.com/okian/factorlens/internal/domain/scoring"
	"github.com/okian/factorlens/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func loadArtifact(name string) *artifact.Artifact {
	a, err := artifact.Load(context.Background(), filepath.Join("..", "..", "configs", name))
	if err != nil {
		panic(err)
	}
	return a
}

func newService(art *artifact.Artifact, opts ...service.Option) *service.Service {
	var n atomic.Int64
	base := []service.Option{
		service.WithLogger(logger.Nop()),
		service.WithClock(func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }),
		service.WithIDGenerator(func() string { return fmt.Sprintf("id-%d", n.Add(1)) }),
	}
	s := service.New(art, append(base, opts...)...)
	if err := s.Start(context.Background()); err != nil {
		panic(err)
	}
	return s
}

func rec(id, bp string, a1c, age float64, gender string) model.RawRecord {
	return model.RawRecord{GrainID: id, Values: map[string]model.Value{
		"SystolicBP": model.Text(bp),
		"A1CNBR":     model.Number(a1c),
		"Age":        model.Number(age),
		"Gender":     model.Text(gender),
	}}
}

func sampleBatch() service.RawBatch {
	return service.RawBatch{Records: []model.RawRecord{
		rec("e1", "High", 7.0, 70, "M"),
		rec("e2", "Normal", 5.5, 40, "F"),
		rec("e3", "Elevated", 8.2, 58, "M"),
	}}
}

func TestPrepare(t *testing.T) {
	Convey("Given a started service", t, func() {
		ctx := context.Background()
		svc := newService(loadArtifact("readmission.yaml"), service.WithMaxBatchRecords(3))

		Convey("When preparing a valid batch", func() {
			b, err := svc.Prepare(ctx, sampleBatch())

			Convey("Then records are encoded in training column order and stored", func() {
				So(err, ShouldBeNil)
				So(b.ID, ShouldEqual, "id-1")
				So(b.GrainColumn, ShouldEqual, "EncounterID")
				So(b.Records[0].Encoded, ShouldResemble, []float64{0, 1, 7.0, 70, 1})
				So(b.Records[1].Encoded, ShouldResemble, []float64{0, 0, 5.5, 40, 0})

				cur, err := svc.Batch(ctx, "current")
				So(err, ShouldBeNil)
				So(cur.ID, ShouldEqual, b.ID)
			})
		})

		Convey("When a grain id repeats", func() {
			raw := sampleBatch()
			raw.Records[2].GrainID = "e1"
			_, err := svc.Prepare(ctx, raw)
			So(errors.Is(err, dedupe.ErrDuplicateGrain), ShouldBeTrue)
		})

		Convey("When a grain id is empty", func() {
			raw := sampleBatch()
			raw.Records[1].GrainID = ""
			_, err := svc.Prepare(ctx, raw)
			So(errors.Is(err, model.ErrEmptyGrain), ShouldBeTrue)
		})

		Convey("When a level was not seen at training", func() {
			raw := sampleBatch()
			raw.Records[1].Values["SystolicBP"] = model.Text("Crisis")
			_, err := svc.Prepare(ctx, raw)

			Convey("Then nothing is stored", func() {
				So(errors.Is(err, model.ErrUnknownLevel), ShouldBeTrue)
				_, err := svc.Batch(ctx, "current")
				So(errors.Is(err, service.ErrBatchNotFound), ShouldBeTrue)
			})
		})

		Convey("When a value is missing", func() {
			raw := sampleBatch()
			delete(raw.Records[0].Values, "Age")
			_, err := svc.Prepare(ctx, raw)
			So(errors.Is(err, encoding.ErrMissingValue), ShouldBeTrue)
		})

		Convey("When the batch is empty or too large", func() {
			_, err := svc.Prepare(ctx, service.RawBatch{})
			So(errors.Is(err, service.ErrEmptyBatch), ShouldBeTrue)

			raw := sampleBatch()
			raw.Records = append(raw.Records, rec("e4", "High", 6, 30, "F"))
			_, err = svc.Prepare(ctx, raw)
			So(errors.Is(err, service.ErrBatchTooLarge), ShouldBeTrue)
		})
	})

	Convey("Given a service that was never started", t, func() {
		svc := service.New(loadArtifact("readmission.yaml"), service.WithLogger(logger.Nop()))
		_, err := svc.Prepare(context.Background(), sampleBatch())
		So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
	})
}

func TestDeployAndFactors(t *testing.T) {
	Convey("Given a prepared batch", t, func() {
		ctx := context.Background()
		svc := newService(loadArtifact("readmission.yaml"))
		b, err := svc.Prepare(ctx, sampleBatch())
		So(err, ShouldBeNil)

		Convey("When deploying with three factors", func() {
			tbl, err := svc.Deploy(ctx, b, 3)
			So(err, ShouldBeNil)

			Convey("Then the table has the standard layout", func() {
				So(tbl.Columns, ShouldResemble, []string{
					"RunID", "ModelNM", "LastLoadDTS", "EncounterID", "PredictedProbNBR",
					"Factor1", "Factor2", "Factor3", "ErrorTXT",
				})
				So(tbl.Len(), ShouldEqual, 3)
			})

			Convey("Then factors are source variables ranked by surrogate contribution", func() {
				// e1 contributions: A1CNBR 1.4, SystolicBPHigh 0.8, Age 0.7, GenderM 0.05
				So(tbl.Rows[0][3], ShouldEqual, "e1")
				So(tbl.Rows[0][5:8], ShouldResemble, []any{"A1CNBR", "SystolicBP", "Age"})
				So(tbl.Rows[0][4], ShouldBeBetween, 0.0, 1.0)
				So(tbl.Rows[0][8], ShouldBeNil)
			})
		})

		Convey("When deploying without a factor count", func() {
			tbl, err := svc.Deploy(ctx, b, 0)
			So(err, ShouldBeNil)
			So(len(tbl.Columns), ShouldEqual, 5+3+1)
		})

		Convey("When asking for all factors with weights", func() {
			rankings, err := svc.TopFactors(ctx, b, 0, true)
			So(err, ShouldBeNil)

			Convey("Then every encoded column is returned with aligned weights", func() {
				So(len(rankings), ShouldEqual, 3)
				So(rankings[0].Names, ShouldResemble, []string{"A1CNBR", "SystolicBPHigh", "Age", "GenderM", "SystolicBPElevated"})
				So(rankings[0].Weights[0], ShouldAlmostEqual, 1.4, 1e-12)
				So(rankings[0].Weights[4], ShouldEqual, 0.0)
			})
		})

		Convey("When asking for a factor table of two", func() {
			tbl, err := svc.FactorsTable(ctx, b, 2, true)
			So(err, ShouldBeNil)
			So(tbl.Columns[4:], ShouldResemble, []string{"Factor1", "Factor1Weight", "Factor2", "Factor2Weight"})
		})
	})
}

func TestRecommend(t *testing.T) {
	Convey("Given a prepared batch", t, func() {
		ctx := context.Background()
		svc := newService(loadArtifact("readmission.yaml"))
		b, err := svc.Prepare(ctx, sampleBatch())
		So(err, ShouldBeNil)

		req := svc.DefaultRequest("SystolicBP", "A1CNBR")
		req.Levels = map[string][]model.Value{"A1CNBR": {model.Number(5.0), model.Number(6.0)}}

		Convey("When recommending for one grain", func() {
			req.GrainIDs = []string{"e1"}
			rows, err := svc.Recommend(ctx, b, req)
			So(err, ShouldBeNil)

			Convey("Then the best change per variable is ranked and padded", func() {
				So(len(rows), ShouldEqual, 1)
				r := rows[0]
				So(r.GrainID, ShouldEqual, "e1")
				So(len(r.Slots), ShouldEqual, 3)
				So(r.Slots[0].Variable, ShouldEqual, "SystolicBP")
				So(r.Slots[0].Value, ShouldResemble, model.Text("Normal"))
				So(r.Slots[0].Delta, ShouldBeLessThan, 0)
				So(r.Slots[1].Variable, ShouldEqual, "A1CNBR")
				So(r.Slots[1].Value.Number(), ShouldEqual, 5.0)
				So(r.Slots[2].Present, ShouldBeFalse)
			})
		})

		Convey("When grain ids select records out of batch order", func() {
			req.GrainIDs = []string{"e3", "e1"}
			rows, err := svc.Recommend(ctx, b, req)
			So(err, ShouldBeNil)
			So(rows[0].GrainID, ShouldEqual, "e3")
			So(rows[1].GrainID, ShouldEqual, "e1")
		})

		Convey("When a grain id is unknown", func() {
			req.GrainIDs = []string{"e1", "e9"}
			_, err := svc.Recommend(ctx, b, req)
			So(errors.Is(err, service.ErrGrainNotFound), ShouldBeTrue)
		})

		Convey("When a numeric variable has no levels", func() {
			_, err := svc.Recommend(ctx, b, svc.DefaultRequest("Age"))
			So(errors.Is(err, counterfactual.ErrNumericLevelsRequired), ShouldBeTrue)
		})

		Convey("When building the process-variables table", func() {
			tbl, err := svc.ProcessVariables(ctx, b, req)
			So(err, ShouldBeNil)
			So(tbl.Len(), ShouldEqual, 3)
			So(tbl.Columns[5:9], ShouldResemble, []string{"Modify1TXT", "Modify1Value", "Modify1Delta", "Modify1Desirability"})
			So(tbl.Rows[0][5], ShouldEqual, "SystolicBP")
		})
	})
}

func TestDeterminismAcrossWorkers(t *testing.T) {
	Convey("Given the same batch on sequential and parallel services", t, func() {
		ctx := context.Background()

		var raw service.RawBatch
		levels := []string{"Normal", "Elevated", "High"}
		for i := 0; i < 200; i++ {
			raw.Records = append(raw.Records, rec(fmt.Sprintf("e%03d", i), levels[i%3], 5+float64(i%7)*0.5, float64(30+i%50), []string{"F", "M"}[i%2]))
		}

		for _, name := range []string{"readmission.yaml", "readmission-forest.yaml"} {
			art := loadArtifact(name)
			seq := newService(art, service.WithWorkerCount(1))
			par := newService(art, service.WithWorkerCount(8))

			bs, err := seq.Prepare(ctx, raw)
			So(err, ShouldBeNil)
			bp, err := par.Prepare(ctx, raw)
			So(err, ShouldBeNil)

			req := seq.DefaultRequest("A1CNBR", "SystolicBP")
			req.Levels = map[string][]model.Value{"A1CNBR": {model.Number(5), model.Number(6), model.Number(7)}}
			req.RepeatedFactors = true
			req.NumTopFactors = 4

			rs, err := seq.Recommend(ctx, bs, req)
			So(err, ShouldBeNil)
			rp, err := par.Recommend(ctx, bp, req)
			So(err, ShouldBeNil)
			So(rp, ShouldResemble, rs)

			ss, err := seq.Predict(ctx, bs)
			So(err, ShouldBeNil)
			sp, err := par.Predict(ctx, bp)
			So(err, ShouldBeNil)
			So(sp, ShouldResemble, ss)

			ts, err := seq.Deploy(ctx, bs, 2)
			So(err, ShouldBeNil)
			tp, err := par.Deploy(ctx, bp, 2)
			So(err, ShouldBeNil)
			So(tp.Rows, ShouldResemble, ts.Rows)
		}
	})
}

// failingStrategy wraps a real strategy and fails every score.
type failingStrategy struct {
	service.Strategy
}

func (f failingStrategy) Predict(_ context.Context, frame model.Frame) ([]scoring.Score, error) {
	out := make([]scoring.Score, len(frame.Rows))
	for i := range out {
		out[i] = scoring.Score{Err: scoring.ErrNonNumericScore}
	}
	return out, nil
}

// debugLogger keeps the fields of every debug entry by message.
type debugLogger struct {
	logger.Logger
	mu      sync.Mutex
	entries map[string][]map[string]any
}

func newDebugLogger() *debugLogger {
	return &debugLogger{Logger: logger.Nop(), entries: make(map[string][]map[string]any)}
}

func (l *debugLogger) Debug(_ context.Context, msg string, fields ...logger.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m := make(map[string]any, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}
	l.entries[msg] = append(l.entries[msg], m)
}

func (l *debugLogger) Named(string) logger.Logger { return l }

func TestStrategyHooks(t *testing.T) {
	Convey("Given a strategy whose predictions fail per record", t, func() {
		ctx := context.Background()
		art := loadArtifact("readmission.yaml")
		engine, err := art.Engine()
		So(err, ShouldBeNil)
		base, err := service.NewStrategy(art, encoding.New(art.Schema), engine, nil)
		So(err, ShouldBeNil)

		logs := newDebugLogger()
		svc := newService(art, service.WithStrategy(failingStrategy{Strategy: base}), service.WithLogger(logs))
		b, err := svc.Prepare(ctx, sampleBatch())
		So(err, ShouldBeNil)

		tbl, err := svc.Deploy(ctx, b, 1)

		Convey("Then the batch still deploys with the anomaly on each row", func() {
			So(err, ShouldBeNil)
			for _, row := range tbl.Rows {
				So(row[4], ShouldBeNil)
				So(row[6], ShouldEqual, scoring.ErrNonNumericScore.Error())
			}
		})

		Convey("Then each anomaly is logged with the record's observed inputs", func() {
			entries := logs.entries["scoring anomaly"]
			So(len(entries), ShouldEqual, 3)
			So(entries[0]["grain"], ShouldEqual, "e1")
			So(entries[0]["SystolicBP"], ShouldEqual, "High")
			So(entries[0]["A1CNBR"], ShouldEqual, "7")
			So(entries[1]["Gender"], ShouldEqual, "F")
		})
	})

	Convey("Given an artifact with an unknown family", t, func() {
		art := loadArtifact("readmission.yaml")
		bad := *art
		bad.Family = "svm"
		_, err := service.NewStrategy(&bad, encoding.New(bad.Schema), nil, nil)
		So(errors.Is(err, artifact.ErrInvalidArtifact), ShouldBeTrue)
	})
}

func TestGetStats(t *testing.T) {
	Convey("Given a started service with one batch", t, func() {
		svc := newService(loadArtifact("readmission.yaml"), service.WithWorkerCount(2))
		_, err := svc.Prepare(context.Background(), sampleBatch())
		So(err, ShouldBeNil)

		stats := svc.GetStats()
		So(stats["started"], ShouldEqual, true)
		So(stats["batches"], ShouldEqual, 1)
		So(stats["workerCount"], ShouldEqual, 2)
		So(stats["model"], ShouldEqual, "readmission-risk")
		So(stats["mode"], ShouldEqual, "classification")

		svc.Stop()
		So(svc.GetStats()["started"], ShouldEqual, false)
	})
}
