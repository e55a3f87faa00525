package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/pairwise/internal/config"
	"github.com/okian/pairwise/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestMainApplicationIntegration(t *testing.T) {
	convey.Convey("Given a configuration with a memory store and local directories", t, func() {
		root := t.TempDir()
		videos := filepath.Join(root, "videos")
		experimentDir := filepath.Join(root, "experiment")
		convey.So(os.MkdirAll(videos, 0o755), convey.ShouldBeNil)
		convey.So(os.MkdirAll(experimentDir, 0o755), convey.ShouldBeNil)
		convey.So(os.WriteFile(filepath.Join(videos, "File 2.mp4"), []byte("x"), 0o600), convey.ShouldBeNil)
		convey.So(os.WriteFile(filepath.Join(experimentDir, "experiment.html"), []byte("<html>run</html>"), 0o600), convey.ShouldBeNil)

		cfg := config.New()
		cfg.StoreDriver = config.DriverMemory
		cfg.Experiment = "familiar_openended"
		cfg.VideosDir = videos
		cfg.VideoLayout = "flat"
		cfg.VideoURLPrefix = "/general_assets/videos"
		cfg.WatchVideos = false
		cfg.ExperimentDir = experimentDir
		cfg.IndexFile = "experiment.html"
		cfg.AssetsDir = root
		convey.So(cfg.Validate(), convey.ShouldBeNil)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		svc := newService(cfg, logger.Nop())
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer svc.Stop()

		srv := httptest.NewServer(newHandler(ctx, cfg, svc, logger.Nop()))
		defer srv.Close()

		get := func(path string) (int, string) {
			resp, err := http.Get(srv.URL + path)
			convey.So(err, convey.ShouldBeNil)
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			return resp.StatusCode, string(body)
		}

		convey.Convey("Then every route group is mounted", func() {
			code, body := get("/")
			convey.So(code, convey.ShouldEqual, http.StatusOK)
			convey.So(body, convey.ShouldEqual, "<html>run</html>")

			code, body = get("/api/videos")
			convey.So(code, convey.ShouldEqual, http.StatusOK)
			convey.So(body, convey.ShouldContainSubstring, `"File 2.mp4"`)

			code, _ = get("/general_assets/videos/File%202.mp4")
			convey.So(code, convey.ShouldEqual, http.StatusOK)

			code, _ = get("/general_assests/videos/File%202.mp4")
			convey.So(code, convey.ShouldEqual, http.StatusOK)

			code, _ = get("/openapi.yaml")
			convey.So(code, convey.ShouldEqual, http.StatusOK)

			code, _ = get("/healthz")
			convey.So(code, convey.ShouldEqual, http.StatusOK)

			code, body = get("/stats")
			convey.So(code, convey.ShouldEqual, http.StatusOK)
			convey.So(body, convey.ShouldContainSubstring, `"started":true`)
		})
	})
}

func TestMainApplicationComponents(t *testing.T) {
	convey.Convey("Given main application components", t, func() {
		convey.Convey("When the system metrics updater runs until its context ends", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()

			convey.Convey("Then it returns without panicking", func() {
				convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)
				convey.So(func() { updateSystemMetrics() }, convey.ShouldNotPanic)
			})
		})

		convey.Convey("When run is given an address that cannot be bound", func() {
			cfg := config.New()
			cfg.StoreDriver = config.DriverMemory
			cfg.WatchVideos = false
			cfg.Addr = "256.0.0.1:bad"

			convey.Convey("Then it returns the listen error", func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				convey.So(run(ctx, cfg), convey.ShouldNotBeNil)
			})
		})
	})
}
