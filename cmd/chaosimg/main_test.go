package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
)

func TestParseSize(t *testing.T) {
	w, h, err := parseSize("128x64")
	if err != nil || w != 128 || h != 64 {
		t.Fatalf("parseSize = %d, %d, %v", w, h, err)
	}
	for _, bad := range []string{"128", "0x4", "ax4", "4x-1"} {
		if _, _, err := parseSize(bad); err == nil {
			t.Fatalf("parseSize(%q): expected an error", bad)
		}
	}
}

func TestFlagsOverrideConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yml")
	if err := os.WriteFile(path, []byte("acm:\n  iterations: 3\n  a: 5\ncompression:\n  codec: zstd\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	opts := registerOptions(fs)
	if err := fs.Parse([]string{"-config", path, "-acm-iter", "7", "-log-level", "error"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cfg, logger, err := opts.resolve(fs)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if logger == nil {
		t.Fatalf("expected a logger")
	}
	if cfg.ACM.Iterations != 7 || cfg.ACM.A != 5 || cfg.Compression.Codec != "zstd" || cfg.LogLevel != "error" {
		t.Fatalf("unexpected merged config %+v", cfg)
	}
}

func TestEncryptDecryptCommands(t *testing.T) {
	dir := t.TempDir()
	env := filepath.Join(dir, "img.chmg")
	out := filepath.Join(dir, "out.png")
	cipher := filepath.Join(dir, "cipher.bmp")
	if err := runEncrypt([]string{"-o", env, "-size", "40x30", "-no-metadata", "-cipher-image", cipher, "-log-level", "error"}); err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if err := runInspect([]string{"-i", env}); err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if err := runDecrypt([]string{"-i", env, "-o", out, "-log-level", "error"}); err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	for _, p := range []string{out, cipher} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("expected %s: %v", p, err)
		}
	}
	if err := runDecrypt([]string{"-i", env, "-o", out, "-hash", "00", "-log-level", "error"}); err == nil {
		t.Fatalf("expected a digest mismatch")
	}
}
