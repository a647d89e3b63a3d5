package types_test

import (
	"encoding/json"
	"testing"

	"github.com/okian/factorlens/internal/domain/counterfactual"
	"github.com/okian/factorlens/internal/domain/model"
	types "github.com/okian/factorlens/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestProcessVariablesRequest(t *testing.T) {
	Convey("Given server defaults", t, func() {
		defaults := counterfactual.DefaultRequest()

		Convey("When the request leaves every option out", func() {
			var body types.ProcessVariablesRequest
			err := json.Unmarshal([]byte(`{"variables":["SystolicBP"]}`), &body)
			So(err, ShouldBeNil)
			req := body.Request(defaults)

			Convey("Then the defaults apply", func() {
				So(req.Variables, ShouldResemble, []string{"SystolicBP"})
				So(req.SmallerBetter, ShouldBeTrue)
				So(req.RepeatedFactors, ShouldBeFalse)
				So(req.NumTopFactors, ShouldEqual, counterfactual.DefaultNumTopFactors)
				So(req.GrainIDs, ShouldBeNil)
			})
		})

		Convey("When the request overrides the options", func() {
			var body types.ProcessVariablesRequest
			err := json.Unmarshal([]byte(`{
				"variables": ["Age", "A1CNBR"],
				"levels": {"Age": [40, 50]},
				"grain_ids": ["e2"],
				"smaller_better": false,
				"repeated_factors": true,
				"num_top_factors": 5
			}`), &body)
			So(err, ShouldBeNil)
			req := body.Request(defaults)

			Convey("Then the explicit values win", func() {
				So(req.SmallerBetter, ShouldBeFalse)
				So(req.RepeatedFactors, ShouldBeTrue)
				So(req.NumTopFactors, ShouldEqual, 5)
				So(req.GrainIDs, ShouldResemble, []string{"e2"})
				So(req.Levels["Age"], ShouldResemble, []model.Value{model.Number(40), model.Number(50)})
			})

			Convey("And the defaults are not modified", func() {
				So(defaults.SmallerBetter, ShouldBeTrue)
				So(defaults.NumTopFactors, ShouldEqual, counterfactual.DefaultNumTopFactors)
			})
		})
	})
}

func TestUploadRequest(t *testing.T) {
	Convey("Given an upload body with mixed values", t, func() {
		var body types.UploadRequest
		err := json.Unmarshal([]byte(`{
			"records": [{"grain_id": "e1", "values": {"Age": 61, "GenderM": "M", "A1CNBR": null}}]
		}`), &body)

		Convey("Then each value keeps its kind", func() {
			So(err, ShouldBeNil)
			So(body.BatchID, ShouldEqual, "")
			So(len(body.Records), ShouldEqual, 1)
			vals := body.Records[0].Values
			So(vals["Age"].IsNumber(), ShouldBeTrue)
			So(vals["GenderM"].Text(), ShouldEqual, "M")
			So(vals["A1CNBR"].IsMissing(), ShouldBeTrue)
		})
	})
}
