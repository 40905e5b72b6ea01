package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"towerstats/pkg/ocr"
	"towerstats/pkg/runs"
)

// Prints the raw OCR text of one or more screenshots, the fields the matcher
// assigns from it and whether the combined record validates.
func main() {
	lang := flag.String("lang", "eng", "tesseract language")
	raw := flag.Bool("raw", false, "skip preprocessing")
	savePre := flag.String("save-preproc", "", "write the preprocessed images to this directory")
	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: ocr_dump [--lang eng] [--raw] [--save-preproc DIR] IMAGE...")
		os.Exit(2)
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.WarnLevel)

	var screens []ocr.Screen
	for _, p := range flag.Args() {
		data, err := os.ReadFile(p)
		if err != nil {
			logger.Fatal().Err(err).Str("file", p).Msg("read image")
		}
		info, err := os.Stat(p)
		if err != nil {
			logger.Fatal().Err(err).Str("file", p).Msg("stat image")
		}
		if *savePre != "" {
			pre, err := ocr.Preprocess(data, ocr.DefaultPreprocess)
			if err != nil {
				logger.Fatal().Err(err).Str("file", p).Msg("preprocess")
			}
			out := filepath.Join(*savePre, strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))+".pre.jpg")
			if err := os.WriteFile(out, pre, 0o644); err != nil {
				logger.Fatal().Err(err).Msg("save preprocessed image")
			}
			fmt.Printf("saved %s\n", out)
		}
		screens = append(screens, ocr.Screen{FileName: filepath.Base(p), LastModified: info.ModTime(), Data: data})
	}

	opts := ocr.Options{Timeout: 2 * time.Minute}
	if !*raw {
		opts.Preprocess = &ocr.DefaultPreprocess
	}
	res := ocr.NewBatch(ocr.NewTesseract(*lang), opts, logger).Run(context.Background(), screens)
	for _, r := range res.Results {
		fmt.Println(strings.Repeat("-", 50))
		fmt.Printf("%s (%s)\n", r.FileName, r.LastModified.Format(time.RFC3339))
		if r.Err != nil {
			fmt.Printf("error: %v\n", r.Err)
			continue
		}
		fmt.Println(r.Text)
	}
	fmt.Println(strings.Repeat("-", 50))
	for _, w := range res.Warnings {
		fmt.Printf("warning: %s\n", w)
	}

	fv, assigned := runs.Default.MatchAll(runs.Default.Defaults(), res.Texts()...)
	for _, a := range assigned {
		fmt.Printf("%s.%s = %q (line %d)\n", a.Location.Section, a.Location.Key, a.Text, a.Line+1)
	}
	if err := runs.Default.Validate(fv); err != nil {
		fmt.Printf("record incomplete: %v\n", err)
		return
	}
	fmt.Println("record is complete")
}
