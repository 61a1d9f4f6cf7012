package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/btasdelen/arrview/internal/api"
	"github.com/btasdelen/arrview/internal/logger"
	"github.com/btasdelen/arrview/pkg/arrayio"
	"github.com/btasdelen/arrview/pkg/config"
	"github.com/btasdelen/arrview/pkg/export"
	"github.com/btasdelen/arrview/pkg/ndarray"
	"github.com/btasdelen/arrview/pkg/visualization"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "arrview.yaml", "Path to the YAML configuration file")
	writeConfig := flag.Bool("write-config", false, "Write a default configuration file to -config and exit")
	inputPath := flag.String("input", "", "Array to view (.npy or .npy.zst)")
	demo := flag.Bool("demo", false, "View a random 10x10x10x10x10 array")
	title := flag.String("title", "", "Session title (default: dtype and shape)")
	serve := flag.Bool("serve", false, "Serve the session over HTTP until interrupted")
	addr := flag.String("addr", "", "HTTP listen address (default from config)")
	viewMode := flag.String("view", "", "View mode: magnitude, real, imag, phase, complex")
	cmapName := flag.String("colormap", "", "Scalar colormap (default from config)")
	roles := flag.String("roles", "", "Row, column and dynamic axes, e.g. 0,1,2")
	indices := flag.String("index", "", "Fixed indices, e.g. 3=4,4=0")
	transpose := flag.Bool("transpose", false, "Transpose the displayed frame")
	rotate := flag.Int("rotate", 0, "Counter-clockwise quarter turns")
	exportPath := flag.String("export", "", "Save the current frame (.png, .jpg, .tif, .npy, .npy.zst, .mat)")
	exportSeq := flag.String("export-seq", "", "Save every frame along the dynamic axis as PNGs into this directory")
	exportAnim := flag.String("export-anim", "", "Save the dynamic axis as an animated .gif")
	fps := flag.Int("fps", 0, "Animation frame rate (default from config)")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	if *writeConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Default configuration written to: %s\n", *configPath)
		return
	}

	// Validate inputs
	if *inputPath == "" && !*demo {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *fps > 0 {
		cfg.Viewer.FrameRate = *fps
	}
	if *cmapName != "" {
		cfg.Viewer.Colormap = *cmapName
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	logr := logger.NewConsole(logger.ParseLevel(cfg.Output.LogLevel, cfg.Output.Verbose || *verbose))

	fmt.Println("================================")
	fmt.Println("ARRVIEW: N-DIMENSIONAL ARRAY VIEWER")
	fmt.Println("================================")

	data, err := loadData(*inputPath)
	if err != nil {
		log.Fatalf("Failed to load array: %v", err)
	}
	fmt.Printf("Loaded %s array of shape %v\n", data.DType(), data.Shape())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	host := visualization.NewHost(cfg.Host.QueueSize, visualization.OptionsFromConfig(cfg), logr)
	created := make(chan *visualization.Viewer, 1)
	host.OnCreate(func(v *visualization.Viewer) {
		select {
		case created <- v:
		default:
		}
	})
	go host.Run(ctx)

	if _, err := host.Open(data, *title); err != nil {
		log.Fatalf("Failed to open viewer: %v", err)
	}
	var viewer *visualization.Viewer
	select {
	case viewer = <-created:
	case <-time.After(10 * time.Second):
		log.Fatalf("Timed out waiting for the viewer session")
	}

	settings := viewSettings{
		Mode:      *viewMode,
		Roles:     *roles,
		Indices:   *indices,
		Transpose: *transpose,
		Rotate:    *rotate,
	}
	if err := settings.apply(viewer); err != nil {
		log.Fatalf("Failed to configure viewer: %v", err)
	}
	printState(viewer)

	if err := runExports(viewer, cfg, *exportPath, *exportSeq, *exportAnim); err != nil {
		log.Fatalf("Export failed: %v", err)
	}

	if *serve {
		if err := serveHTTP(ctx, host, cfg, logr); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}

	host.Submit(visualization.Shutdown{})
	<-host.Done()
}

// loadData reads the input array, or builds the random demo array when no
// path is given.
func loadData(path string) (*ndarray.Array, error) {
	if path != "" {
		return arrayio.Load(path)
	}
	shape := []int{10, 10, 10, 10, 10}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	values := make([]float64, 100000)
	for i := range values {
		values[i] = rng.Float64()
	}
	return ndarray.NewReal(shape, values)
}

func printState(v *visualization.Viewer) {
	st, err := v.State()
	if err != nil {
		log.Printf("Warning: failed to read viewer state: %v", err)
		return
	}
	fmt.Printf("\nSession %s: %s\n", st.ID, st.Title)
	fmt.Printf("- Roles (row, column, dynamic): %v\n", st.Roles)
	fmt.Printf("- Indices: %v\n", st.Indices)
	fmt.Printf("- View mode: %s, colormap: %s\n", st.ViewMode, st.Colormap)
	fmt.Printf("- Display range: [%.4g, %.4g]\n", st.Contrast.Low, st.Contrast.High)
	fmt.Printf("- Frame %dx%d, mean %.4g, std %.4g\n",
		st.FrameShape[0], st.FrameShape[1], st.Stats.Mean, st.Stats.StdDev)
}

// runExports writes the requested frame, sequence and animation files.
func runExports(v *visualization.Viewer, cfg *config.Config, framePath, seqDir, animPath string) error {
	if framePath != "" {
		if export.IsArrayPath(framePath) {
			a, err := v.CurrentFrame()
			if err != nil {
				return err
			}
			if err := export.SaveArray(framePath, a); err != nil {
				return err
			}
		} else {
			img, err := v.RenderImage()
			if err != nil {
				return err
			}
			if err := export.SaveImage(framePath, img, cfg.Output.JPEGQuality); err != nil {
				return err
			}
		}
		fmt.Printf("Frame saved to: %s\n", framePath)
	}

	if seqDir == "" && animPath == "" {
		return nil
	}

	fmt.Println("\nRendering frames along the dynamic axis...")
	frames, err := v.Sequence()
	if err != nil {
		return err
	}
	for i := range frames {
		frames[i] = export.Annotate(frames[i], v.FrameLabel(i))
	}

	if seqDir != "" {
		paths, err := export.SaveSequence(seqDir, frames)
		if err != nil {
			return err
		}
		fmt.Printf("Saved %d frames to: %s\n", len(paths), seqDir)
	}
	if animPath != "" {
		if err := export.SaveAnimation(animPath, frames, cfg.Viewer.FrameRate); err != nil {
			return err
		}
		fmt.Printf("Animation saved to: %s (%d fps)\n", animPath, cfg.Viewer.FrameRate)
	}
	return nil
}

// serveHTTP runs the API until ctx is cancelled.
func serveHTTP(ctx context.Context, host *visualization.Host, cfg *config.Config, logr zerolog.Logger) error {
	router := api.NewRouter(api.RouterConfig{
		Host:        host,
		CORSOrigins: cfg.Server.CORSOrigins,
		Log:         logr,
		FrameRate:   cfg.Viewer.FrameRate,
	})
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	fmt.Printf("\nServing on %s (Ctrl-C to stop)\n", cfg.Server.Addr)

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
