// Command camerapipeline-demo is a minimal host application exercising the
// callback interface: it registers whatever cameras are named in
// CAMERA_URLS, logs every status transition and delivered frame, and shuts
// down cleanly on SIGINT/SIGTERM.
package main

import (
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/BrunoKrugel/camerapipeline"
	"github.com/BrunoKrugel/camerapipeline/internal/config"

	_ "github.com/joho/godotenv/autoload"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	sys := camerapipeline.New(cfg)
	if code := sys.Initialize(); code != camerapipeline.OK {
		log.Fatalf("initialize failed: %d", code)
	}

	urls := strings.Split(os.Getenv("CAMERA_URLS"), ",")
	fps := 5.0
	if v := os.Getenv("CAMERA_TARGET_FPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			fps = f
		}
	}

	for i, url := range urls {
		url = strings.TrimSpace(url)
		if url == "" {
			continue
		}
		id := i + 1
		code := sys.AddCamera(id, url, fps, onStatus, nil, onFrame, sys)
		if code != camerapipeline.OK {
			log.Printf("camera %d: add_camera failed: %d", id, code)
			continue
		}
		log.Printf("camera %d: registered (%s)", id, url)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Println("shutting down")
	sys.Shutdown()
}

func onStatus(cameraID int, statusCode int, message string, _ any) {
	log.Printf("camera %d: status=%d %s", cameraID, statusCode, message)
}

func onFrame(h camerapipeline.Handle, d camerapipeline.FrameDescriptor, ctx any) {
	sys, ok := ctx.(*camerapipeline.System)
	if !ok {
		return
	}
	// A real host would hand d.Pix off to its own consumer here (encoder,
	// preview window, detector) before releasing. The demo just logs it.
	defer sys.Release(h)
	log.Printf("camera %d: frame %dx%d pts=%d", d.CameraID, d.Width, d.Height, d.PTS)
}
