package encoding_test

import (
	"errors"
	"testing"

	"github.com/okian/factorlens/internal/domain/encoding"
	"github.com/okian/factorlens/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func testSchema(dropFirst bool) *model.Schema {
	s, err := model.NewSchema([]model.Variable{
		{Name: "SystolicBP", Kind: model.Categorical, Levels: []string{"Normal", "Elevated", "High"}},
		{Name: "A1CNBR", Kind: model.Numeric},
	}, dropFirst)
	if err != nil {
		panic(err)
	}
	return s
}

func TestEncode(t *testing.T) {
	Convey("Given a one-hot encoder", t, func() {
		enc := encoding.New(testSchema(false))

		Convey("When encoding a complete raw row", func() {
			row, err := enc.Encode(map[string]model.Value{
				"SystolicBP": model.Text("High"),
				"A1CNBR":     model.Number(6.1),
			})

			Convey("Then exactly the observed level is active", func() {
				So(err, ShouldBeNil)
				So(row, ShouldResemble, []float64{0, 0, 1, 6.1})
			})
		})

		Convey("When a level was not seen at training", func() {
			_, err := enc.Encode(map[string]model.Value{
				"SystolicBP": model.Text("Crisis"),
				"A1CNBR":     model.Number(6.1),
			})

			Convey("Then it fails with UnknownLevel", func() {
				So(errors.Is(err, model.ErrUnknownLevel), ShouldBeTrue)
			})
		})

		Convey("When a variable is missing", func() {
			_, err := enc.Encode(map[string]model.Value{"SystolicBP": model.Text("High")})
			So(errors.Is(err, encoding.ErrMissingValue), ShouldBeTrue)
		})

		Convey("When a numeric variable holds text", func() {
			_, err := enc.Encode(map[string]model.Value{
				"SystolicBP": model.Text("High"),
				"A1CNBR":     model.Text("six"),
			})
			So(errors.Is(err, encoding.ErrTypeMismatch), ShouldBeTrue)
		})
	})
}

func TestSubstitute(t *testing.T) {
	Convey("Given an observed encoded row", t, func() {
		enc := encoding.New(testSchema(false))
		observed := []float64{0, 0, 1, 6.1}

		Convey("When substituting a categorical level", func() {
			row, err := enc.Substitute(observed, "SystolicBP", model.Text("Normal"))

			Convey("Then only that variable's dummies change", func() {
				So(err, ShouldBeNil)
				So(row, ShouldResemble, []float64{1, 0, 0, 6.1})
				So(observed, ShouldResemble, []float64{0, 0, 1, 6.1})
			})
		})

		Convey("When substituting a numeric value", func() {
			row, err := enc.Substitute(observed, "A1CNBR", model.Number(5.5))
			So(err, ShouldBeNil)
			So(row, ShouldResemble, []float64{0, 0, 1, 5.5})
		})

		Convey("When substituting the observed value", func() {
			row, err := enc.Substitute(observed, "SystolicBP", model.Text("High"))
			So(err, ShouldBeNil)
			So(row, ShouldResemble, observed)
		})

		Convey("When the variable is unknown or the row is malformed", func() {
			_, err := enc.Substitute(observed, "BMI", model.Number(20))
			So(errors.Is(err, model.ErrUnknownVariable), ShouldBeTrue)

			_, err = enc.Substitute([]float64{1}, "A1CNBR", model.Number(5))
			So(errors.Is(err, encoding.ErrRowWidth), ShouldBeTrue)
		})
	})

	Convey("Given reference coding", t, func() {
		enc := encoding.New(testSchema(true))
		observed := []float64{0, 1, 7.0} // High

		Convey("When substituting the reference level", func() {
			row, err := enc.Substitute(observed, "SystolicBP", model.Text("Normal"))

			Convey("Then every dummy of the variable is zero", func() {
				So(err, ShouldBeNil)
				So(row, ShouldResemble, []float64{0, 0, 7.0})
			})
		})

		Convey("When substituting a non-reference level", func() {
			row, err := enc.Substitute(observed, "SystolicBP", model.Text("Elevated"))
			So(err, ShouldBeNil)
			So(row, ShouldResemble, []float64{1, 0, 7.0})
		})
	})
}
