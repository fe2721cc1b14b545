package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/TheusHen/chaosimg/chaosimg"
	"github.com/TheusHen/chaosimg/chaosimg/analysis"
	"github.com/TheusHen/chaosimg/chaosimg/container"
	"github.com/TheusHen/chaosimg/chaosimg/grid"
	"github.com/TheusHen/chaosimg/chaosimg/integrity"
	"github.com/TheusHen/chaosimg/chaosimg/pipeline"
	"github.com/TheusHen/chaosimg/chaosimg/steg"
	"github.com/TheusHen/chaosimg/internal/config"
	"github.com/TheusHen/chaosimg/internal/imageio"
	"github.com/dustin/go-humanize"
)

func newCodec(cfg config.Config, logger *slog.Logger) (*chaosimg.Codec, error) {
	opts := append(cfg.PipelineOptions(), pipeline.WithLogger(logger))
	copts := []chaosimg.Option{chaosimg.WithPipeline(pipeline.New(opts...))}
	if cfg.Protected() {
		copts = append(copts, chaosimg.WithParity(cfg.Parity.DataShards, cfg.Parity.ParityShards))
	}
	return chaosimg.New(copts...)
}

func runEncrypt(args []string) error {
	fs := flag.NewFlagSet("encrypt", flag.ExitOnError)
	opts := registerOptions(fs)
	in := fs.String("i", "", "input image (PNG, JPEG, GIF, BMP); empty uses a procedural test image")
	out := fs.String("o", "", "output envelope")
	gray := fs.Bool("gray", false, "convert to grayscale before encrypting")
	noMeta := fs.Bool("no-metadata", false, "do not hide metadata in the ciphertext")
	size := fs.String("size", "", "resize to WIDTHxHEIGHT before encrypting")
	cipherOut := fs.String("cipher-image", "", "also write the encrypted grid as an image")
	fs.Parse(args)
	if *out == "" {
		return errors.New("encrypt: -o is required")
	}

	cfg, logger, err := opts.resolve(fs)
	if err != nil {
		return err
	}
	grayscale := cfg.Grayscale
	embed := cfg.EmbedMetadata
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "gray":
			grayscale = *gray
		case "no-metadata":
			embed = !*noMeta
		}
	})

	var img *grid.Grid
	if *in == "" {
		logger.Warn("no input image, using the procedural fallback")
		img = imageio.Fallback()
		if grayscale {
			img, err = toGray(img)
			if err != nil {
				return err
			}
		}
	} else {
		var info imageio.Info
		img, info, err = imageio.Load(*in, grayscale)
		if err != nil {
			return err
		}
		logger.Info("loaded image", "path", *in, "format", info.Format, "shape", img.Shape().String())
		if info.Truncated > 0 {
			logger.Warn("samples above 255 truncated to 8 bits", "count", info.Truncated)
		}
	}
	if *size != "" {
		w, h, err := parseSize(*size)
		if err != nil {
			return err
		}
		if img, err = imageio.Resize(img, w, h); err != nil {
			return err
		}
		logger.Info("resized", "shape", img.Shape().String())
	}

	codec, err := newCodec(cfg, logger)
	if err != nil {
		return err
	}
	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	sealed, err := codec.EncodeTo(f, pipeline.SealRequest{
		Grid:          img,
		Params:        cfg.Params(),
		EmbedMetadata: embed,
		Grayscale:     grayscale,
	})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if sealed.Status == pipeline.StatusDegraded {
		logger.Warn("sealed without metadata", "error", sealed.Err)
	}
	if *cipherOut != "" {
		if err := imageio.Save(*cipherOut, sealed.Encrypted); err != nil {
			return err
		}
	}

	fmt.Printf("Encrypted %s -> %s\n", img.Shape(), *out)
	fmt.Printf("  Codec:      %s\n", sealed.Blob.Codec)
	fmt.Printf("  Raw:        %s\n", humanize.Bytes(uint64(sealed.Encrypted.Len())))
	fmt.Printf("  Compressed: %s\n", humanize.Bytes(uint64(len(sealed.Blob.Data))))
	fmt.Printf("  Entropy:    %.4f bits\n", analysis.Entropy(sealed.Encrypted))
	fmt.Printf("  Metadata:   %t\n", sealed.Metadata != nil)
	fmt.Printf("  SHA-256:    %s\n", sealed.Digest)
	return nil
}

func toGray(g *grid.Grid) (*grid.Grid, error) {
	img, err := imageio.ToImage(g)
	if err != nil {
		return nil, err
	}
	return imageio.FromImage(img, true)
}

func runDecrypt(args []string) error {
	fs := flag.NewFlagSet("decrypt", flag.ExitOnError)
	opts := registerOptions(fs)
	in := fs.String("i", "", "input envelope")
	out := fs.String("o", "", "output image (.png or .bmp)")
	digest := fs.String("hash", "", "expected SHA-256 of the compressed payload")
	noMeta := fs.Bool("no-metadata", false, "ignore metadata hidden in the ciphertext")
	ref := fs.String("ref", "", "reference image to compare the result with")
	fs.Parse(args)
	if *in == "" || *out == "" {
		return errors.New("decrypt: -i and -o are required")
	}

	cfg, logger, err := opts.resolve(fs)
	if err != nil {
		return err
	}
	if *digest == "" {
		logger.Warn("no -hash given, verifying against the digest stored in the envelope")
	}
	codec, err := newCodec(cfg, logger)
	if err != nil {
		return err
	}
	f, err := os.Open(*in)
	if err != nil {
		return err
	}
	defer f.Close()

	opened, env, err := codec.DecodeFrom(f, pipeline.OpenRequest{
		Digest:          *digest,
		Params:          cfg.Params(),
		ExtractMetadata: !*noMeta,
	})
	if err != nil {
		return err
	}
	if len(env.Repaired) > 0 {
		logger.Warn("rebuilt damaged shards", "shards", env.Repaired)
	}
	switch opened.Status {
	case pipeline.StatusFailed:
		return opened.Err
	case pipeline.StatusDegraded:
		logger.Warn("decryption degraded", "error", opened.Err)
	}
	if err := imageio.Save(*out, opened.Image()); err != nil {
		return err
	}

	fmt.Printf("Decrypted %s -> %s (%s)\n", *in, *out, opened.Image().Shape())
	if len(opened.Overrides) > 0 {
		fmt.Printf("  Parameters from metadata: %v\n", opened.Overrides)
	}
	if *ref != "" {
		reference, _, err := imageio.Load(*ref, opened.Image().Shape().Ndim() == 2)
		if err != nil {
			return err
		}
		report, err := analysis.Compare(reference, opened.Image())
		if err != nil {
			return err
		}
		fmt.Printf("  MSE:  %.4f\n  PSNR: %.2f dB\n  SSIM: %.4f\n", report.MSE, report.PSNR, report.SSIM)
	}
	return nil
}

func runInspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	in := fs.String("i", "", "input envelope")
	fs.Parse(args)
	if *in == "" {
		return errors.New("inspect: -i is required")
	}
	f, err := os.Open(*in)
	if err != nil {
		return err
	}
	defer f.Close()

	env, err := container.Read(f)
	if err != nil {
		return err
	}
	fmt.Printf("Envelope %s\n", *in)
	fmt.Printf("  Codec:    %s\n", env.Codec)
	fmt.Printf("  Shape:    %s (element width %d)\n", env.Shape, env.Width)
	if !env.Original.IsZero() {
		fmt.Printf("  Original: %s\n", env.Original)
	}
	fmt.Printf("  Payload:  %s\n", humanize.Bytes(uint64(len(env.Data))))
	if env.Protected() {
		fmt.Printf("  Parity:   %d+%d shards, %d repaired\n", env.DataShards, env.ParityShards, len(env.Repaired))
	}
	fmt.Printf("  SHA-256:  %s (valid: %t)\n", env.Digest, integrity.Verify(env.Data, env.Digest))

	g, err := integrity.New().Decompress(env.Blob(), env.Shape, env.Width)
	if err != nil {
		return err
	}
	fmt.Printf("  Entropy:  %.4f bits\n", analysis.Entropy(g))
	payload, ok := steg.Extract(g)
	if !ok {
		fmt.Println("  Metadata: none")
		return nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("  ", "  ")
	if err := enc.Encode(payload); err != nil {
		return err
	}
	fmt.Printf("  Metadata: %s", buf.String())
	return nil
}
