package store

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/m-lab/go/testingx"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name, stem, ext string
	}{
		{"report.bin", "report", ".bin"},
		{"1MB", "1MB", ""},
		{"archive.tar.gz", "archive.tar", ".gz"},
		{".hidden", ".hidden", ""},
	}
	for _, tt := range tests {
		stem, ext := split(tt.name)
		if stem != tt.stem || ext != tt.ext {
			t.Errorf("split(%q) = %q, %q; want %q, %q", tt.name, stem, ext, tt.stem, tt.ext)
		}
	}
}

func TestDir_SaveUnique(t *testing.T) {
	d := Dir{Path: filepath.Join(t.TempDir(), "received"), Unique: true}
	var got []string
	for _, data := range []string{"one", "two", "three"} {
		path, err := d.Save("report.bin", []byte(data))
		testingx.Must(t, err, "could not save")
		got = append(got, filepath.Base(path))
	}
	want := []string{"report.bin", "report_1.bin", "report_2.bin"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Save() #%d wrote %q, want %q", i, got[i], want[i])
		}
	}
	b, err := os.ReadFile(filepath.Join(d.Path, "report.bin"))
	testingx.Must(t, err, "could not read")
	if string(b) != "one" {
		t.Errorf("first file was overwritten: %q", b)
	}
}

func TestDir_SaveConcurrent(t *testing.T) {
	d := Dir{Path: t.TempDir(), Unique: true}
	wg := sync.WaitGroup{}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := d.Save("1MB", []byte("x")); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	entries, err := os.ReadDir(d.Path)
	testingx.Must(t, err, "could not list")
	if len(entries) != 10 {
		t.Errorf("found %d files, want 10", len(entries))
	}
}

func TestDir_SaveOverwrite(t *testing.T) {
	d := Dir{Path: t.TempDir()}
	for _, data := range []string{"one", "two"} {
		_, err := d.Save("report.bin", []byte(data))
		testingx.Must(t, err, "could not save")
	}
	b, err := os.ReadFile(filepath.Join(d.Path, "report.bin"))
	testingx.Must(t, err, "could not read")
	if string(b) != "two" {
		t.Errorf("report.bin = %q, want two", b)
	}
}
