package batchclient_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/factorlens/internal/adapters/artifact"
	"github.com/okian/factorlens/internal/adapters/http/api"
	service "github.com/okian/factorlens/internal/app"
	"github.com/okian/factorlens/internal/batchclient"
	"github.com/okian/factorlens/internal/domain/types"
	"github.com/okian/factorlens/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

var artifactPath = filepath.Join("..", "..", "configs", "readmission.yaml")

func newServer() *httptest.Server {
	art, err := artifact.Load(context.Background(), artifactPath)
	if err != nil {
		panic(err)
	}
	var n atomic.Int64
	svc := service.New(art,
		service.WithLogger(logger.Nop()),
		service.WithClock(func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }),
		service.WithIDGenerator(func() string { return fmt.Sprintf("id-%d", n.Add(1)) }),
	)
	if err := svc.Start(context.Background()); err != nil {
		panic(err)
	}
	mux := http.NewServeMux()
	api.NewServer(svc, svc).Register(context.Background(), mux)
	return httptest.NewServer(mux)
}

func writeJSONFile(dir, name string, v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		panic(err)
	}
	return path
}

const batchJSON = `{"batch_id": "b1", "records": [
	{"grain_id": "e1", "values": {"SystolicBP": "High", "A1CNBR": 7.0, "Age": 70, "Gender": "M"}},
	{"grain_id": "e2", "values": {"SystolicBP": "Normal", "A1CNBR": 5.5, "Age": 40, "Gender": "F"}}
]}`

func TestRun(t *testing.T) {
	Convey("Given a running service", t, func() {
		So(batchclient.SetupLogging(io.Discard, "text", false), ShouldBeNil)
		srv := newServer()
		defer srv.Close()

		dir := t.TempDir()
		input := filepath.Join(dir, "batch.json")
		So(os.WriteFile(input, []byte(batchJSON), 0o600), ShouldBeNil)

		base := batchclient.Config{
			BaseURL: srv.URL,
			Timeout: 5 * time.Second,
			Input:   input,
			Format:  batchclient.FormatCSV,
		}

		Convey("When deploying an uploaded batch as CSV", func() {
			cfg := base
			cfg.Command = batchclient.CommandDeploy
			cfg.Factors = 2
			var out bytes.Buffer

			stats, err := batchclient.Run(context.Background(), &cfg, &out)

			Convey("Then the table has a header and one line per record", func() {
				So(err, ShouldBeNil)
				So(stats.BatchID, ShouldEqual, "b1")
				So(stats.Uploaded, ShouldEqual, 2)
				So(stats.Rows, ShouldEqual, 2)

				records, err := csv.NewReader(&out).ReadAll()
				So(err, ShouldBeNil)
				So(len(records), ShouldEqual, 3)
				So(records[0][len(records[0])-1], ShouldEqual, "ErrorTXT")
				So(records[1][3], ShouldEqual, "e1")
				So(records[1][len(records[1])-1], ShouldEqual, "NA")
			})
		})

		Convey("When ranking factors of the current batch as JSON", func() {
			up := base
			up.Command = batchclient.CommandDeploy
			_, err := batchclient.Run(context.Background(), &up, io.Discard)
			So(err, ShouldBeNil)

			cfg := base
			cfg.Input = ""
			cfg.BatchID = "current"
			cfg.Command = batchclient.CommandFactors
			cfg.TopN = 1
			cfg.Weights = true
			cfg.Format = batchclient.FormatJSON
			var out bytes.Buffer

			_, err = batchclient.Run(context.Background(), &cfg, &out)

			Convey("Then rows are keyed by column name", func() {
				So(err, ShouldBeNil)
				var rows []map[string]any
				So(json.Unmarshal(out.Bytes(), &rows), ShouldBeNil)
				So(len(rows), ShouldEqual, 2)
				So(rows[0]["EncounterID"], ShouldEqual, "e1")
				So(rows[0]["Factor1"], ShouldEqual, "A1CNBR")
				So(rows[1]["Factor1"], ShouldEqual, "A1CNBR")
			})
		})

		Convey("When recommending from a request file", func() {
			smaller := true
			cfg := base
			cfg.Command = batchclient.CommandRecommend
			cfg.RequestFile = writeJSONFile(dir, "req.json", types.ProcessVariablesRequest{
				Variables:     []string{"SystolicBP"},
				GrainIDs:      []string{"e1"},
				SmallerBetter: &smaller,
			})
			var out bytes.Buffer

			stats, err := batchclient.Run(context.Background(), &cfg, &out)

			Convey("Then one row comes back with the best level", func() {
				So(err, ShouldBeNil)
				So(stats.Rows, ShouldEqual, 1)
				records, err := csv.NewReader(&out).ReadAll()
				So(err, ShouldBeNil)
				So(records[1][5], ShouldEqual, "SystolicBP")
				So(records[1][6], ShouldEqual, "Normal")
			})
		})

		Convey("When the service rejects the request", func() {
			cfg := base
			cfg.Command = batchclient.CommandRecommend
			cfg.Variables = []string{"A1CNBR"}

			_, err := batchclient.Run(context.Background(), &cfg, io.Discard)

			Convey("Then the API error is surfaced", func() {
				var apiErr *batchclient.APIError
				So(errors.As(err, &apiErr), ShouldBeTrue)
				So(apiErr.Status, ShouldEqual, http.StatusBadRequest)
				So(apiErr.Code, ShouldEqual, "bad_request")
			})
		})

		Convey("When records are generated from the artifact", func() {
			cfg := base
			cfg.Input = ""
			cfg.ArtifactPath = artifactPath
			cfg.Generate = 25
			cfg.Seed = 7
			cfg.Command = batchclient.CommandDeploy

			stats, err := batchclient.Run(context.Background(), &cfg, io.Discard)

			Convey("Then every generated record is scored", func() {
				So(err, ShouldBeNil)
				So(stats.Uploaded, ShouldEqual, 25)
				So(stats.Rows, ShouldEqual, 25)
			})
		})
	})

	Convey("Given an unreachable service", t, func() {
		So(batchclient.SetupLogging(io.Discard, "text", false), ShouldBeNil)
		cfg := batchclient.Config{
			BaseURL: "http://127.0.0.1:1",
			Timeout: time.Second,
			Command: batchclient.CommandDeploy,
			BatchID: "current",
			Format:  batchclient.FormatCSV,
		}
		_, err := batchclient.Run(context.Background(), &cfg, io.Discard)
		So(errors.Is(err, batchclient.ErrUnhealthy), ShouldBeTrue)
	})
}

func TestConfigValidate(t *testing.T) {
	Convey("Given client configs", t, func() {
		ok := batchclient.Config{Command: batchclient.CommandDeploy, BatchID: "b1", Format: batchclient.FormatCSV}
		So(ok.Validate(), ShouldBeNil)

		bad := ok
		bad.Command = "train"
		So(errors.Is(bad.Validate(), batchclient.ErrInvalidConfig), ShouldBeTrue)

		bad = ok
		bad.Command = batchclient.CommandRecommend
		So(errors.Is(bad.Validate(), batchclient.ErrInvalidConfig), ShouldBeTrue)

		bad = ok
		bad.BatchID = ""
		So(errors.Is(bad.Validate(), batchclient.ErrInvalidConfig), ShouldBeTrue)

		bad = ok
		bad.Format = "xml"
		So(errors.Is(bad.Validate(), batchclient.ErrInvalidConfig), ShouldBeTrue)
	})
}

func TestGenerator(t *testing.T) {
	Convey("Given a generator over the readmission schema", t, func() {
		So(batchclient.SetupLogging(io.Discard, "text", false), ShouldBeNil)
		art, err := artifact.Load(context.Background(), artifactPath)
		So(err, ShouldBeNil)
		ranges := map[string]batchclient.NumericRange{"Age": {Min: 18, Max: 90}}

		a := batchclient.NewGenerator(art.Schema, 42, ranges).Generate(context.Background(), 50)
		b := batchclient.NewGenerator(art.Schema, 42, ranges).Generate(context.Background(), 50)

		Convey("Then values fit the schema and repeat for a seed", func() {
			So(len(a), ShouldEqual, 50)
			for i := range a {
				So(a[i].GrainID, ShouldNotBeBlank)
				So(a[i].GrainID, ShouldNotEqual, b[i].GrainID)
				So(a[i].Values["SystolicBP"].Text(), ShouldBeIn, []string{"Normal", "Elevated", "High"})
				So(a[i].Values["Age"].Number(), ShouldBeBetweenOrEqual, 18.0, 90.0)
				So(a[i].Values["A1CNBR"].Number(), ShouldBeBetweenOrEqual, 0.0, 100.0)
				for k, v := range a[i].Values {
					So(v.Equal(b[i].Values[k]), ShouldBeTrue)
				}
			}
		})
	})
}
