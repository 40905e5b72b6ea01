package storage

import (
	"bytes"
	"image"
	"image/color"
	"io"
	"math/rand"
	"os"
	"testing"

	"github.com/disintegration/imaging"
)

func TestPutOpenDelete(t *testing.T) {
	s, err := NewDiskStore(t.TempDir(), "/screens/", 0)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	obj, err := s.Put("Battle.PNG", []byte("small"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if obj.ContentType != "image/png" || obj.Size != 5 {
		t.Fatalf("object %+v", obj)
	}
	if got := s.URL(obj.Key); got != "/screens/"+obj.Key {
		t.Fatalf("url %q", got)
	}
	f, err := s.Open(obj.Key)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	b, _ := io.ReadAll(f)
	f.Close()
	if string(b) != "small" {
		t.Fatalf("read back %q", b)
	}
	if err := s.Delete(obj.Key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Open(obj.Key); !os.IsNotExist(err) {
		t.Fatalf("expected not exist after delete, got %v", err)
	}
	if err := s.Delete(obj.Key); err != nil {
		t.Fatalf("second delete should be a no-op: %v", err)
	}
}

func TestInvalidKeys(t *testing.T) {
	s, _ := NewDiskStore(t.TempDir(), "/screens", 0)
	for _, k := range []string{"", "../etc/passwd", "a/b.png", ".hidden"} {
		if _, err := s.Open(k); err != ErrInvalidKey {
			t.Fatalf("Open(%q) = %v, want ErrInvalidKey", k, err)
		}
	}
}

func TestPutShrinksOversizedImages(t *testing.T) {
	// Noise compresses badly, so the PNG is far over a small budget.
	img := image.NewNRGBA(image.Rect(0, 0, 300, 300))
	rnd := rand.New(rand.NewSource(1))
	for y := 0; y < 300; y++ {
		for x := 0; x < 300; x++ {
			img.Set(x, y, color.NRGBA{uint8(rnd.Intn(256)), uint8(rnd.Intn(256)), uint8(rnd.Intn(256)), 255})
		}
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		t.Fatalf("encode: %v", err)
	}
	const budget = 50_000
	s, _ := NewDiskStore(t.TempDir(), "/screens", budget)
	obj, err := s.Put("run.png", buf.Bytes())
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if obj.Size >= int64(buf.Len()) {
		t.Fatalf("expected a smaller blob, got %d >= %d", obj.Size, buf.Len())
	}
	f, _ := s.Open(obj.Key)
	defer f.Close()
	dec, err := imaging.Decode(f)
	if err != nil {
		t.Fatalf("stored blob is not an image: %v", err)
	}
	if dec.Bounds().Dx() >= 300 {
		t.Fatalf("image not downscaled: %v", dec.Bounds())
	}
}
