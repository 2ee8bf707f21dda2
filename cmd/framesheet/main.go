// Command framesheet tiles rendered frames into one contact sheet.
package main

import (
	"flag"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/echoflaresat/orbitview/texture"
	"golang.org/x/image/draw"
)

func main() {
	cell := flag.String("cell", "", "Cell size WxH; frames are scaled to fit (default: size of the first frame)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [-cell WxH] <cols>x<rows> <output.png|jpg> <frame1> <frame2> ...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) < 3 {
		flag.Usage()
		os.Exit(1)
	}

	cols, rows, err := parseGrid(args[0])
	if err != nil {
		log.Fatalf("Invalid layout: %v", err)
	}
	output := args[1]
	inputs := args[2:]
	if len(inputs) != cols*rows {
		log.Fatalf("Expected %d input files, got %d", cols*rows, len(inputs))
	}

	var cellW, cellH int
	if *cell != "" {
		if cellW, cellH, err = parseGrid(*cell); err != nil {
			log.Fatalf("Invalid cell size: %v", err)
		}
	}

	sheet, err := compose(cols, rows, cellW, cellH, inputs)
	if err != nil {
		log.Fatal(err)
	}
	if err := save(output, sheet); err != nil {
		log.Fatal(err)
	}
}

// parseGrid parses "NxM" into two positive integers.
func parseGrid(s string) (int, int, error) {
	parts := strings.Split(strings.ToLower(s), "x")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%q: expected NxM", s)
	}
	a, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("%q: %w", s, err)
	}
	b, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("%q: %w", s, err)
	}
	if a <= 0 || b <= 0 {
		return 0, 0, fmt.Errorf("%q: both sides must be positive", s)
	}
	return a, b, nil
}

// compose draws the frames row by row into a cols x rows grid of cells.
// A zero cell size takes the size of the first frame.
func compose(cols, rows, cellW, cellH int, inputs []string) (*image.NRGBA, error) {
	var sheet *image.NRGBA
	for idx, path := range inputs {
		fmt.Printf("Processing %s\n", path)
		tex, err := texture.Load(path)
		if err != nil {
			return nil, err
		}
		frame := tex.Image()

		if sheet == nil {
			if cellW == 0 || cellH == 0 {
				cellW, cellH = frame.Bounds().Dx(), frame.Bounds().Dy()
			}
			sheet = image.NewNRGBA(image.Rect(0, 0, cols*cellW, rows*cellH))
		}

		x := (idx % cols) * cellW
		y := (idx / cols) * cellH
		dst := image.Rect(x, y, x+cellW, y+cellH)
		if frame.Bounds().Size() == dst.Size() {
			draw.Draw(sheet, dst, frame, frame.Bounds().Min, draw.Src)
		} else {
			draw.BiLinear.Scale(sheet, dst, frame, frame.Bounds(), draw.Src, nil)
		}
		if err := tex.Close(); err != nil {
			return nil, err
		}
	}
	return sheet, nil
}

func save(output string, sheet *image.NRGBA) error {
	fmt.Printf("-> creating %s\n", output)
	out, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("could not create %s: %w", output, err)
	}
	defer out.Close()

	switch ext := strings.ToLower(filepath.Ext(output)); ext {
	case ".png":
		return png.Encode(out, sheet)
	case ".jpg", ".jpeg":
		return jpeg.Encode(out, sheet, &jpeg.Options{Quality: 95})
	default:
		return fmt.Errorf("unsupported output format: %s", ext)
	}
}
