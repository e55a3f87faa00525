package model_test

import (
	"encoding/json"
	"testing"

	model "github.com/okian/pairwise/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestLogRecordDecode(t *testing.T) {
	convey.Convey("Given a posted trial record", t, func() {
		body := `{
			"rt": 1532.4,
			"trial_type": "comparison_trial",
			"trial_index": "7",
			"time_elapsed": 48211,
			"internal_node_id": 0,
			"subject": "5f1a",
			"response": "0",
			"block": "main_experiment",
			"leftVideo": "1-1016-B0.mp4",
			"rightVideo": "2-45-B1.mp4",
			"chosen_video": "1-1016-B0.mp4",
			"chosen_object": "Object A",
			"stimulus": {"html": "<div/>"},
			"pic": 3,
			"study_id": null
		}`

		convey.Convey("When it is decoded", func() {
			var rec model.LogRecord
			err := json.Unmarshal([]byte(body), &rec)

			convey.Convey("Then fields keep their values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(float64(*rec.RT), convey.ShouldEqual, 1532.4)
				convey.So(float64(*rec.TrialIndex), convey.ShouldEqual, 7)
				convey.So(rec.TrialType, convey.ShouldEqual, model.Text("comparison_trial"))
				convey.So(rec.LeftVideoName, convey.ShouldEqual, model.Text("1-1016-B0.mp4"))
				convey.So(rec.ChosenObject, convey.ShouldEqual, model.Text("Object A"))
				convey.So(rec.StudyID, convey.ShouldEqual, model.Text(""))
			})

			convey.Convey("Then loosely typed fields are stored as text", func() {
				convey.So(rec.Stimulus, convey.ShouldEqual, model.Text(`{"html": "<div/>"}`))
				convey.So(rec.Pic, convey.ShouldEqual, model.Text("3"))
			})
		})

		convey.Convey("When a numeric field is not a number", func() {
			var rec model.LogRecord
			err := json.Unmarshal([]byte(`{"rt": "fast"}`), &rec)

			convey.Convey("Then decoding fails", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When it is encoded again", func() {
			rec := model.LogRecord{TrialType: "instructions", RT: model.Num(120)}
			b, err := json.Marshal(rec)

			convey.Convey("Then empty fields are omitted", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(string(b), convey.ShouldEqual, `{"rt":120,"trial_type":"instructions"}`)
			})
		})
	})
}

func TestParseNodeID(t *testing.T) {
	convey.Convey("Given node id strings", t, func() {
		cases := map[string]float64{
			"0.0-2.0-1.0": 0,
			"3.5":         3.5,
			"12-4":        12,
			" 7.25abc":    7.25,
			".5-1":        0.5,
			"-1.0-2.0":    -1,
		}
		for in, want := range cases {
			got := model.ParseNodeID(in)
			convey.So(got, convey.ShouldNotBeNil)
			convey.So(float64(*got), convey.ShouldEqual, want)
		}

		convey.So(model.ParseNodeID("abc"), convey.ShouldBeNil)
		convey.So(model.ParseNodeID(""), convey.ShouldBeNil)
	})
}

func TestTableName(t *testing.T) {
	convey.Convey("Given a log record", t, func() {
		convey.So(model.LogRecord{}.TableName(), convey.ShouldEqual, "trial_logs")
	})
}
