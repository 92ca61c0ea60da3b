package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/11ea/xaipneumonia/internal/analyzer"
	"github.com/11ea/xaipneumonia/internal/batcher"
	"github.com/11ea/xaipneumonia/internal/classifier"
	"github.com/11ea/xaipneumonia/internal/config"
	"github.com/11ea/xaipneumonia/internal/engine"
	"github.com/11ea/xaipneumonia/internal/export"
	"github.com/11ea/xaipneumonia/internal/render"
	"github.com/11ea/xaipneumonia/internal/source"
	"github.com/11ea/xaipneumonia/internal/system"
)

var buildVersion = "dev"

func main() {
	system.InitResourceLimits()

	dirs := []string{"input/images", "input/models", "output"}
	for _, d := range dirs {
		os.MkdirAll(d, 0755)
	}

	configPtr := flag.String("config", "", "Path to a YAML run config (explicit flags override it)")
	inputPtr := flag.String("input", "", "X-ray image or PDF report (default: newest scan in input/images/)")
	modelPtr := flag.String("model", "", "Path to the .onnx model (default: newest model in input/models/)")
	metadataPtr := flag.String("metadata", "", "Model metadata JSON (default: sidecar next to the model)")
	outputPtr := flag.String("output", "", "Run output directory (default: generated under output/)")
	layerPtr := flag.String("layer", "", "Restrict to one feature layer (default: all configured layers)")
	classPtr := flag.Int("class", -1, "Target class index (-1: the predicted class)")
	selectionPtr := flag.Float64("p", 0.5, "Channel selection: >=1 top-N, <1 activation mass fraction")
	batchPtr := flag.Int("batch", 0, "Inference batch size (0: model default)")
	workersPtr := flag.Int("workers", 0, "Mask generation workers (0: CPU count)")
	colormapPtr := flag.String("colormap", "jet", "Colormap: jet, hot, gray")
	alphaPtr := flag.Float64("alpha", 0.45, "Overlay opacity, 0..1")
	scalePtr := flag.Int("scale", 2, "Overlay upscale factor")
	qrPtr := flag.Bool("qr", false, "Stamp a QR run summary onto each overlay")
	pagePtr := flag.Int("page", 1, "PDF page to rasterize (numbered from 1)")
	dpiPtr := flag.Int("dpi", 150, "PDF rasterization DPI")
	gpuPtr := flag.Bool("gpu", false, "Use the CUDA execution provider when available")
	statsPtr := flag.Bool("stats", false, "Print the performance report and append benchmark.log")
	modelsPtr := flag.Bool("models", false, "List usable models in input/models/ and exit")

	flag.Parse()

	if *modelsPtr {
		listModels("input/models")
		return
	}

	cfg := config.Default()
	if *configPtr != "" {
		loaded, err := config.Load(*configPtr)
		if err != nil {
			log.Fatalf("[-] Failed to load config: %v", err)
		}
		cfg = loaded
	}

	// Explicit flags win over the config file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "input":
			cfg.InputPath = *inputPtr
		case "model":
			cfg.ModelPath = *modelPtr
		case "metadata":
			cfg.MetadataPath = *metadataPtr
		case "layer":
			cfg.FeatureLayer = *layerPtr
		case "class":
			cfg.TargetClass = *classPtr
		case "p":
			cfg.SelectionParam = *selectionPtr
		case "batch":
			cfg.BatchSize = *batchPtr
		case "workers":
			cfg.Workers = *workersPtr
		case "colormap":
			cfg.Colormap = *colormapPtr
		case "alpha":
			cfg.OverlayAlpha = *alphaPtr
		case "scale":
			cfg.OverlayScale = *scalePtr
		case "qr":
			cfg.QRStamp = *qrPtr
		case "page":
			cfg.PDFPage = *pagePtr
		case "dpi":
			cfg.PDFDPI = *dpiPtr
		case "stats":
			cfg.ShowStats = *statsPtr
		}
	})
	cfg.BuildVersion = buildVersion

	if cfg.InputPath == "" {
		latest, err := system.FindLatestInput("input/images")
		if err != nil {
			log.Fatalf("[-] Error: %v. Put an X-ray into input/images/", err)
		}
		cfg.InputPath = latest
		fmt.Printf("[*] Selected scan: %s\n", cfg.InputPath)
	}
	if cfg.ModelPath == "" {
		latest, err := system.FindLatestModel("input/models")
		if err != nil {
			log.Fatalf("[-] Error: %v. Put an .onnx model into input/models/", err)
		}
		cfg.ModelPath = latest
		fmt.Printf("[*] Selected model: %s\n", cfg.ModelPath)
	}
	if cfg.MetadataPath == "" {
		cfg.MetadataPath = config.MetadataPathFor(cfg.ModelPath)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("[-] Invalid settings: %v", err)
	}
	meta, err := config.LoadMetadata(cfg.MetadataPath)
	if err != nil {
		log.Fatalf("[-] Failed to load model metadata: %v", err)
	}

	runDir := *outputPtr
	if runDir == "" {
		baseName := filepath.Base(cfg.InputPath)
		nameOnly := strings.TrimSuffix(baseName, filepath.Ext(baseName))
		cleanName := strings.ReplaceAll(nameOnly, " ", "_")
		timestamp := time.Now().Format("2006-01-02_15-04-05")
		runDir = filepath.Join(cfg.OutputDir, fmt.Sprintf("%s_%s", cleanName, timestamp))
	}
	if err := os.MkdirAll(runDir, 0755); err != nil {
		log.Fatalf("[-] Failed to create output directory: %v", err)
	}

	cm, err := render.NewColormap(cfg.Colormap)
	if err != nil {
		log.Fatalf("[-] %v", err)
	}

	src, err := source.Open(cfg.InputPath, cfg.PDFPage, cfg.PDFDPI)
	if err != nil {
		log.Fatalf("[-] Failed to open input: %v", err)
	}
	img, err := src.Image()
	srcName := src.Name()
	src.Close()
	if err != nil {
		log.Fatalf("[-] Failed to decode input: %v", err)
	}

	letterboxed := source.Letterbox(img, meta.InputSize)
	rgba := source.RGBABytes(letterboxed)

	fmt.Println("--- [SCORE-CAM ENGINE] ---")
	fmt.Printf("[*] Scan: %s | Model: %s\n", srcName, meta.Name)
	fmt.Printf("[*] Input: %dx%d | Batch: %d | Layers: %d\n",
		meta.InputSize, meta.InputSize, meta.BatchSize, len(meta.FeatureLayers))
	fmt.Println("--------------------------")

	provider, err := classifier.NewORTProvider(cfg.ModelPath, meta, classifier.Options{UseGPU: *gpuPtr})
	if err != nil {
		log.Fatalf("[-] Failed to load the model: %v", err)
	}
	defer classifier.DestroyRuntime()
	defer provider.Close()

	ctx := context.Background()

	sample, err := batcher.Sample(rgba, meta.InputSize, meta.Normalization)
	if err != nil {
		log.Fatalf("[-] Failed to build the input sample: %v", err)
	}
	pred, err := classifier.Classify(ctx, provider, sample, meta)
	if err != nil {
		log.Fatalf("[-] Classification failed: %v", err)
	}

	fmt.Printf("[*] Prediction: %s (%.1f%% confidence)\n", pred.Class, pred.Confidence*100)
	for _, name := range meta.Classes {
		fmt.Printf("    %s: %.4f\n", name, pred.Probabilities[name])
	}

	pipeline, err := engine.New(meta, cfg, provider)
	if err != nil {
		log.Fatalf("[-] Failed to assemble the pipeline: %v", err)
	}

	res, err := pipeline.ComputeHeatmaps(ctx, engine.Request{
		Prediction:   pred,
		Image:        rgba,
		TargetClass:  cfg.TargetClass,
		FeatureLayer: cfg.FeatureLayer,
		OnProgress:   printProgress,
	})
	if err != nil {
		log.Fatalf("[-] Heatmap computation failed: %v", err)
	}
	for layer, layerErr := range res.LayerErrors {
		log.Printf("[!] Layer %s failed: %v", layer, layerErr)
	}

	detector, err := analyzer.NewDetector("threshold")
	if err != nil {
		log.Fatalf("[-] %v", err)
	}

	qrPayload := fmt.Sprintf("%s|%s|%.2f|%s",
		meta.Name, pred.Class, pred.Confidence, time.Now().Format("2006-01-02"))

	files := make(map[string]map[string]string)
	regions := make(map[string][]analyzer.Region)
	for _, layer := range meta.FeatureLayerNames() {
		heatmaps, ok := res.Heatmaps[layer]
		if !ok {
			continue
		}
		files[layer] = make(map[string]string)

		for out, hm := range heatmaps {
			overlay, err := render.Overlay(letterboxed, hm, cm, cfg.OverlayAlpha)
			if err != nil {
				log.Fatalf("[-] Overlay failed for %s/%s: %v", layer, out, err)
			}
			final := render.Upscale(overlay, cfg.OverlayScale)
			if cfg.QRStamp {
				if err := render.StampQR(final, qrPayload); err != nil {
					log.Printf("[!] QR stamp failed for %s/%s: %v", layer, out, err)
				}
			}

			overlayPath := filepath.Join(runDir, fmt.Sprintf("%s_%s.png", layer, out))
			if err := render.WritePNG(overlayPath, final); err != nil {
				log.Fatalf("[-] Failed to write %s: %v", overlayPath, err)
			}
			files[layer][out] = overlayPath

			rawPath := filepath.Join(runDir, fmt.Sprintf("%s_%s_heatmap.png", layer, out))
			if err := render.WritePNG(rawPath, render.HeatmapImage(hm, cm)); err != nil {
				log.Fatalf("[-] Failed to write %s: %v", rawPath, err)
			}

			if out == meta.ClassificationLayer {
				regs, err := detector.Detect(hm)
				if err == nil && len(regs) > 0 {
					regions[layer] = regs
					fmt.Printf("[*] Layer %s: %d focus regions\n", layer, len(regs))
				}
			}
		}
	}

	report := export.BuildReport(res, pred, meta, cfg, srcName, files, regions)
	reportPath := filepath.Join(runDir, "report.json")
	if err := export.WriteReport(reportPath, report); err != nil {
		log.Fatalf("[-] Failed to write the report: %v", err)
	}
	statsPath := filepath.Join(runDir, "channels.csv")
	if err := export.WriteChannelStats(statsPath, res.Stats, []string{meta.ClassificationLayer}); err != nil {
		log.Fatalf("[-] Failed to write channel stats: %v", err)
	}

	if cfg.ShowStats {
		fmt.Println(res.Metrics.Report(buildVersion))
		res.Metrics.LogBenchmark(srcName, buildVersion)
	}

	fmt.Printf("[+++] Done! Results: %s\n", runDir)
}

func printProgress(ev engine.ProgressEvent) {
	switch ev.Kind {
	case engine.SelectionStarted:
		fmt.Printf("[*] Layer %s (%d/%d): selecting channels...\n",
			ev.Layer, ev.LayerIndex+1, ev.TotalLayers)
	case engine.MasksGenerated:
		fmt.Printf("[*] Layer %s: %d masks generated\n", ev.Layer, ev.MaskCount)
	case engine.BatchCompleted:
		fmt.Printf("[>] Ready: %d/%d (%.0f%%)\n", ev.Processed, ev.Total, ev.Fraction*100)
	case engine.HeatmapReady:
		fmt.Printf("[*] Layer %s: %s heatmap ready\n", ev.Layer, ev.OutputLayer)
	}
}

func listModels(dir string) {
	entries, err := system.ListModels(dir)
	if err != nil {
		log.Fatalf("[-] Failed to scan %s: %v", dir, err)
	}
	if len(entries) == 0 {
		fmt.Printf("[!] No usable models in %s (each .onnx needs a .json sidecar)\n", dir)
		return
	}
	for _, e := range entries {
		fmt.Printf("[*] %s (metadata: %s)\n", e.ModelPath, e.MetadataPath)
	}
}
