package stimulus_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/okian/pairwise/internal/domain/random"
	"github.com/okian/pairwise/internal/domain/stimulus"
	. "github.com/smartystreets/goconvey/convey"
)

type listerFunc func(ctx context.Context) ([]stimulus.Item, error)

func (f listerFunc) List(ctx context.Context) ([]stimulus.Item, error) { return f(ctx) }

func TestItemJSON(t *testing.T) {
	Convey("Given stimulus items", t, func() {
		Convey("When a bare item is encoded", func() {
			b, err := json.Marshal(stimulus.File("1-1016-B0.mp4"))

			Convey("Then it is a plain string", func() {
				So(err, ShouldBeNil)
				So(string(b), ShouldEqual, `"1-1016-B0.mp4"`)
			})
		})

		Convey("When a located item is encoded", func() {
			b, err := json.Marshal(stimulus.Item{Path: "/v/3/3-1016-B2.mp4", Folder: 3, FullName: "3-1016-B2.mp4"})

			Convey("Then it is a descriptor object", func() {
				So(err, ShouldBeNil)
				So(string(b), ShouldEqual, `{"path":"/v/3/3-1016-B2.mp4","folder":3,"fullName":"3-1016-B2.mp4"}`)
			})
		})

		Convey("When a mixed listing is decoded", func() {
			var items []stimulus.Item
			err := json.Unmarshal([]byte(`["a.mp4",{"path":"/v/2/b.mp4","folder":2,"fullName":"b.mp4"}]`), &items)

			Convey("Then both shapes are accepted", func() {
				So(err, ShouldBeNil)
				So(items, ShouldHaveLength, 2)
				So(items[0].Name(), ShouldEqual, "a.mp4")
				So(items[0].IsBare(), ShouldBeTrue)
				So(items[1].Name(), ShouldEqual, "/v/2/b.mp4")
				So(items[1].Folder, ShouldEqual, 2)
			})
		})

		Convey("When an object has neither path nor name", func() {
			var it stimulus.Item
			err := json.Unmarshal([]byte(`{"folder":2}`), &it)

			Convey("Then decoding fails", func() {
				So(err, ShouldNotBeNil)
			})
		})

		Convey("When the bevel comes from the file name", func() {
			So(stimulus.File("12-68-B5.mp4").BevelLevel(), ShouldEqual, "B5")
			So(stimulus.File("File 2.mp4").BevelLevel(), ShouldEqual, "")
			So(stimulus.Item{FullName: "x.mp4", Bevel: "B1"}.BevelLevel(), ShouldEqual, "B1")
		})
	})
}

func TestCatalog(t *testing.T) {
	Convey("Given the abstract animation catalogue", t, func() {
		c := stimulus.Catalog{
			BasePath: "/general_assests/25-abstract-animations",
			Folders:  30,
			Bevels:   []string{"B0", "B1", "B2", "B5"},
		}
		items, err := c.Items(context.Background())

		Convey("Then it enumerates every folder and bevel", func() {
			So(err, ShouldBeNil)
			So(items, ShouldHaveLength, 120)
			So(items[0].Path, ShouldEqual, "/general_assests/25-abstract-animations/1/1-1016-B0.mp4")
			So(items[0].Folder, ShouldEqual, 1)
			So(items[119].FullName, ShouldEqual, "30-45-B5.mp4")
		})

		Convey("Then the folder pattern numbers follow the 1016/45/68 cycle", func() {
			So(stimulus.AbstractAnimationPattern(1), ShouldEqual, 1016)
			So(stimulus.AbstractAnimationPattern(2), ShouldEqual, 45)
			So(stimulus.AbstractAnimationPattern(3), ShouldEqual, 1016)
			So(stimulus.AbstractAnimationPattern(4), ShouldEqual, 68)
			So(stimulus.AbstractAnimationPattern(28), ShouldEqual, 68)
		})
	})
}

func TestSampleOnePerCategory(t *testing.T) {
	Convey("Given a categorized set", t, func() {
		items, _ := stimulus.Catalog{BasePath: "/v", Folders: 5, Bevels: []string{"B0", "B1", "B2", "B5"}}.Items(context.Background())

		Convey("When sampling one per category", func() {
			out := stimulus.SampleOnePerCategory(items, random.New(3))

			Convey("Then exactly one item per folder survives, in folder order", func() {
				So(out, ShouldHaveLength, 5)
				for i, it := range out {
					So(it.Folder, ShouldEqual, i+1)
				}
			})
		})

		Convey("When sampling repeatedly", func() {
			r := random.New(11)
			counts := map[string]int{}
			for range 4000 {
				out := stimulus.SampleOnePerCategory(items, r)
				counts[out[0].BevelLevel()]++
			}

			Convey("Then every bevel of a folder gets picked", func() {
				So(counts, ShouldHaveLength, 4)
				for _, n := range counts {
					So(n, ShouldBeBetween, 800, 1200)
				}
			})
		})

		Convey("When items have no folder", func() {
			out := stimulus.SampleOnePerCategory(stimulus.Files("a.mp4", "b.mp4"), random.New(1))

			Convey("Then they pass through", func() {
				So(out, ShouldHaveLength, 2)
			})
		})
	})
}

func TestFallback(t *testing.T) {
	Convey("Given a remote source with a fallback list", t, func() {
		ctx := context.Background()
		fallback := stimulus.Files("File 2.mp4", "File 3.mp4")

		Convey("When discovery fails", func() {
			failing := stimulus.RemoteSource(listerFunc(func(context.Context) ([]stimulus.Item, error) {
				return nil, errors.New("connection refused")
			}))
			items, err := stimulus.WithFallback(failing, fallback).Items(ctx)

			Convey("Then the fallback list is used", func() {
				So(err, ShouldBeNil)
				So(items, ShouldResemble, []stimulus.Item{stimulus.File("File 2.mp4"), stimulus.File("File 3.mp4")})
			})
		})

		Convey("When discovery succeeds", func() {
			ok := stimulus.RemoteSource(listerFunc(func(context.Context) ([]stimulus.Item, error) {
				return stimulus.Files("x.mp4"), nil
			}))
			items, err := stimulus.WithFallback(ok, fallback).Items(ctx)

			Convey("Then the discovered items are used", func() {
				So(err, ShouldBeNil)
				So(items, ShouldHaveLength, 1)
				So(items[0].FullName, ShouldEqual, "x.mp4")
			})
		})

		Convey("When the context is already cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			failing := stimulus.SourceFunc(func(ctx context.Context) ([]stimulus.Item, error) { return nil, ctx.Err() })
			_, err := stimulus.WithFallback(failing, fallback).Items(cctx)

			Convey("Then the cancellation is returned", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
			})
		})

		Convey("When the remote error is wrapped", func() {
			failing := stimulus.RemoteSource(listerFunc(func(context.Context) ([]stimulus.Item, error) {
				return nil, errors.New("boom")
			}))
			_, err := failing.Items(ctx)

			Convey("Then it matches ErrDiscoveryFailed", func() {
				So(errors.Is(err, stimulus.ErrDiscoveryFailed), ShouldBeTrue)
			})
		})
	})
}

func TestBuilder(t *testing.T) {
	Convey("Given a builder", t, func() {
		ctx := context.Background()

		Convey("When no source is configured", func() {
			_, err := stimulus.NewBuilder(nil).Build(ctx)

			Convey("Then ErrNoSource is returned", func() {
				So(errors.Is(err, stimulus.ErrNoSource), ShouldBeTrue)
			})
		})

		Convey("When sampling and shuffling a catalogue", func() {
			src := stimulus.Catalog{BasePath: "/v", Folders: 30, Bevels: []string{"B0", "B1", "B2", "B5"}}
			items, err := stimulus.NewBuilder(src,
				stimulus.WithCategorySampling(),
				stimulus.WithShuffledOrder(),
				stimulus.WithRand(random.New(5)),
			).Build(ctx)

			Convey("Then every folder appears once", func() {
				So(err, ShouldBeNil)
				So(items, ShouldHaveLength, 30)
				folders := map[int]bool{}
				for _, it := range items {
					folders[it.Folder] = true
				}
				So(folders, ShouldHaveLength, 30)
			})
		})

		Convey("When the source shares its backing slice", func() {
			shared := stimulus.Files("a", "b", "c", "d")
			src := stimulus.SourceFunc(func(context.Context) ([]stimulus.Item, error) { return shared, nil })
			_, err := stimulus.NewBuilder(src, stimulus.WithShuffledOrder(), stimulus.WithRand(random.New(9))).Build(ctx)

			Convey("Then the source slice is left untouched", func() {
				So(err, ShouldBeNil)
				So(shared, ShouldResemble, stimulus.Files("a", "b", "c", "d"))
			})
		})
	})
}

func TestFolderZero(t *testing.T) {
	Convey("Given items from a folder numbered 0", t, func() {
		items := []stimulus.Item{
			{Path: "/v/0/0-68-B0.mp4", Folder: 0, FullName: "0-68-B0.mp4", Categorized: true},
			{Path: "/v/0/0-68-B1.mp4", Folder: 0, FullName: "0-68-B1.mp4", Categorized: true},
			{Path: "/v/0/0-68-B2.mp4", Folder: 0, FullName: "0-68-B2.mp4", Categorized: true},
			{Path: "/v/1/1-1016-B0.mp4", Folder: 1, FullName: "1-1016-B0.mp4", Categorized: true},
			stimulus.File("loose.mp4"),
		}

		Convey("When sampling one per category", func() {
			out := stimulus.SampleOnePerCategory(items, random.New(7))

			Convey("Then folder 0 is sampled like any other folder", func() {
				So(out, ShouldHaveLength, 3)
				So(out[0].Folder, ShouldEqual, 0)
				So(out[0].HasFolder(), ShouldBeTrue)
				So(out[1].Folder, ShouldEqual, 1)
				So(out[2].Name(), ShouldEqual, "loose.mp4")
			})
		})

		Convey("When a folder 0 item is encoded and decoded", func() {
			b, err := json.Marshal(items[0])
			So(err, ShouldBeNil)
			var back stimulus.Item
			So(json.Unmarshal(b, &back), ShouldBeNil)

			Convey("Then the folder survives the round trip", func() {
				So(string(b), ShouldEqual, `{"path":"/v/0/0-68-B0.mp4","folder":0,"fullName":"0-68-B0.mp4"}`)
				So(back, ShouldResemble, items[0])
			})
		})

		Convey("When a located item has no folder", func() {
			b, err := json.Marshal(stimulus.Item{Path: "/v/x.mp4", FullName: "x.mp4"})

			Convey("Then no folder is written", func() {
				So(err, ShouldBeNil)
				So(string(b), ShouldEqual, `{"path":"/v/x.mp4","fullName":"x.mp4"}`)
			})
		})
	})
}
