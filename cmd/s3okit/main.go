// s3okit is a CLI utility for working with Spring/Recoil s3o models.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"image/png"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/HugoSmits86/nativewebp"
	"go.uber.org/zap"

	"github.com/ChrisFloofyKitsune/s3o-kit/internal/bake"
	"github.com/ChrisFloofyKitsune/s3o-kit/internal/config"
	"github.com/ChrisFloofyKitsune/s3o-kit/internal/logger"
	"github.com/ChrisFloofyKitsune/s3o-kit/internal/objexport"
	"github.com/ChrisFloofyKitsune/s3o-kit/internal/texture"
	"github.com/ChrisFloofyKitsune/s3o-kit/pkg/s3o"
	"github.com/ChrisFloofyKitsune/s3o-kit/pkg/scene"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "info":
		cmdInfo(args)
	case "roundtrip":
		cmdRoundtrip(args)
	case "obj":
		cmdObj(args)
	case "bake":
		cmdBake(args)
	case "plate":
		cmdPlate(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`s3okit - Spring/Recoil s3o model utility

Usage:
  s3okit <command> [options]

Commands:
  info <file.s3o>                  Show model header and piece tree
  roundtrip <in.s3o> [out.s3o]     Decode/encode and verify byte stability
  obj <in.s3o> <out.obj>           Export as Wavefront OBJ
  bake <in.s3o> <out.s3o>          Bake per-vertex ambient occlusion
  plate <in.s3o> <out.png|webp>    Bake the ground plate shadow image

Examples:
  s3okit info armpw.s3o
  s3okit bake -rays 256 -ground armpw.s3o armpw_ao.s3o
  s3okit plate -plate-res 256 armpw.s3o armpw_plate.png`)
}

func loadModel(path string) *s3o.Model {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	m, err := s3o.Decode(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding %s: %v\n", path, err)
		os.Exit(1)
	}
	return m
}

func writeModel(m *s3o.Model, path string) {
	data, err := m.Encode()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", path, err)
		os.Exit(1)
	}
}

func cmdInfo(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: s3okit info <file.s3o>")
		os.Exit(1)
	}

	path := args[0]
	m := loadModel(path)

	fmt.Printf("Model:    %s\n", path)
	fmt.Printf("Radius:   %.2f\n", m.CollisionRadius)
	fmt.Printf("Height:   %.2f\n", m.Height)
	fmt.Printf("Midpoint: (%.2f, %.2f, %.2f)\n", m.Midpoint[0], m.Midpoint[1], m.Midpoint[2])
	fmt.Printf("Texture1: %s\n", m.TexturePath1)
	fmt.Printf("Texture2: %s\n", m.TexturePath2)
	fmt.Printf("Pieces:   %d\n", m.PieceCount())
	fmt.Printf("Vertices: %d\n", m.VertexCount())

	texDir := filepath.Dir(path)
	if cfg, err := config.Load(); err == nil && cfg.Textures.Dir != "" {
		texDir = cfg.Textures.Dir
	}
	res, err := texture.Resolve(texDir, m.TexturePath1, m.TexturePath2)
	if err != nil {
		fmt.Printf("Textures: %v\n", err)
	} else {
		for _, tex := range []*texture.Texture{res.Color, res.Extra} {
			if tex != nil {
				b := tex.Image.Bounds()
				fmt.Printf("Textures: %s (%dx%d)\n", tex.Path, b.Dx(), b.Dy())
			}
		}
	}

	fmt.Println()
	fmt.Println("Piece tree:")
	printPiece(m.Root, 0)
}

func printPiece(p *s3o.Piece, depth int) {
	if p == nil {
		return
	}
	indent := strings.Repeat("  ", depth)
	kind := ""
	if len(p.Indices) < 3 && len(p.Vertices) <= 2 {
		kind = "  [aim/emit]"
	}
	fmt.Printf("%s%s  %d verts, %d indices, %s%s\n",
		indent, p.Name, len(p.Vertices), len(p.Indices), p.Primitive, kind)
	for _, c := range p.Children {
		printPiece(c, depth+1)
	}
}

func cmdRoundtrip(args []string) {
	fs := flag.NewFlagSet("roundtrip", flag.ExitOnError)
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: s3okit roundtrip <in.s3o> [out.s3o]")
		os.Exit(1)
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	m, err := s3o.Decode(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding: %v\n", err)
		os.Exit(1)
	}
	out, err := m.Encode()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding: %v\n", err)
		os.Exit(1)
	}

	if bytes.Equal(data, out) {
		fmt.Printf("OK: %s re-encodes byte-identically (%d bytes)\n", fs.Arg(0), len(out))
	} else {
		fmt.Printf("NOTE: re-encoded file differs (%d -> %d bytes); layout was normalized\n",
			len(data), len(out))
	}

	if fs.NArg() > 1 {
		if err := os.WriteFile(fs.Arg(1), out, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", fs.Arg(1), err)
			os.Exit(1)
		}
		fmt.Printf("Written: %s\n", fs.Arg(1))
	}
}

func cmdObj(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: s3okit obj <in.s3o> <out.obj>")
		os.Exit(1)
	}

	m := loadModel(args[0])

	f, err := os.Create(args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	if err := objexport.Export(f, m); err != nil {
		fmt.Fprintf(os.Stderr, "Error exporting: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Exported: %s\n", args[1])
}

// bakeFlags registers the bake option overrides on fs and returns a
// finalizer that folds them over the config file defaults.
func bakeFlags(fs *flag.FlagSet, defaults config.BakeConfig) func() bake.Config {
	rays := fs.Int("rays", defaults.RayCount, "Rays per vertex")
	minDist := fs.Float64("min-dist", float64(defaults.MinDistance), "Contact shadow discount distance")
	maxDist := fs.Float64("max-dist", float64(defaults.MaxDistance), "Ignore hits beyond this distance (0 = unlimited)")
	sharp := fs.Float64("sharp", float64(defaults.SharpAngle), "Edge split angle in degrees")
	minClamp := fs.Float64("min-clamp", float64(defaults.MinClamp), "Lower bound of baked occlusion")
	bias := fs.Float64("bias", float64(defaults.Bias), "Occlusion bias")
	gain := fs.Float64("gain", float64(defaults.Gain), "Occlusion gain")
	ground := fs.Bool("ground", defaults.GroundPlate, "Occlude from a ground plane under the model")
	plateRes := fs.Int("plate-res", defaults.PlateResolution, "Ground plate image resolution")
	plateFade := fs.Float64("plate-fade", float64(defaults.PlateEdgeFade), "Ground plate edge fade fraction")
	workers := fs.Int("workers", defaults.Workers, "Concurrent bake workers (0 = all CPUs)")

	return func() bake.Config {
		return bake.Config{
			RayCount:        *rays,
			MinDistance:     float32(*minDist),
			MaxDistance:     float32(*maxDist),
			SharpAngle:      float32(*sharp),
			MinClamp:        float32(*minClamp),
			Bias:            float32(*bias),
			Gain:            float32(*gain),
			GroundPlate:     *ground,
			PlateResolution: *plateRes,
			PlateEdgeFade:   float32(*plateFade),
			Workers:         *workers,
		}
	}
}

func setupBake(name string, args []string) (*bake.Baker, *flag.FlagSet) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}

	fs := flag.NewFlagSet(name, flag.ExitOnError)
	getCfg := bakeFlags(fs, cfg.Bake)
	fs.Parse(args)

	baker, err := bake.New(getCfg(), logger.Log)
	if err != nil {
		logger.Fatal("invalid bake settings", zap.Error(err))
	}
	return baker, fs
}

func cmdBake(args []string) {
	baker, fs := setupBake("bake", args)
	defer logger.Sync()

	if fs.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "Usage: s3okit bake [flags] <in.s3o> <out.s3o>")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	m := loadModel(fs.Arg(0))
	root := scene.FromModel(m, scene.ImportOptions{})

	if err := baker.Hierarchy(ctx, root); err != nil {
		logger.Fatal("bake failed", zap.Error(err))
	}

	baked, err := scene.ToModel(root)
	if err != nil {
		logger.Fatal("export failed", zap.Error(err))
	}
	writeModel(baked, fs.Arg(1))
	logger.Info("model written", zap.String("path", fs.Arg(1)))
}

func cmdPlate(args []string) {
	baker, fs := setupBake("plate", args)
	defer logger.Sync()

	if fs.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "Usage: s3okit plate [flags] <in.s3o> <out.png|webp>")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	m := loadModel(fs.Arg(0))
	root := scene.FromModel(m, scene.ImportOptions{})

	plate, err := baker.Plate(ctx, root)
	if err != nil {
		logger.Fatal("plate bake failed", zap.Error(err))
	}

	outPath := fs.Arg(1)
	f, err := os.Create(outPath)
	if err != nil {
		logger.Fatal("cannot create output", zap.Error(err))
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(outPath)) {
	case ".webp":
		err = nativewebp.Encode(f, plate.Image, nil)
	default:
		err = png.Encode(f, plate.Image)
	}
	if err != nil {
		logger.Fatal("cannot encode plate image", zap.Error(err))
	}

	logger.Info("plate written",
		zap.String("path", outPath),
		zap.Float32("world_size", plate.Size),
		zap.Float32("center_x", plate.Center[0]),
		zap.Float32("center_z", plate.Center[1]))
}
