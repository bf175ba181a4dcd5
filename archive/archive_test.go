package archive

import (
	"path/filepath"
	"testing"
)

func TestObjectKey(t *testing.T) {
	cases := []struct {
		prefix, file, want string
	}{
		{"", filepath.Join("out", "cubert", "3_cubert.tif"), "s1/cubert/3_cubert.tif"},
		{"lab-b", filepath.Join("thorlabs", "3_thorlabs.tif"), "lab-b/s1/thorlabs/3_thorlabs.tif"},
		{"", "3_thorlabs.tif", "s1/3_thorlabs.tif"},
	}
	for _, c := range cases {
		if got := ObjectKey(c.prefix, "s1", c.file); got != c.want {
			t.Errorf("ObjectKey(%q, %q) = %q, expected %q", c.prefix, c.file, got, c.want)
		}
	}
}

func TestEnabled(t *testing.T) {
	if (Config{Endpoint: "minio:9000"}).Enabled() {
		t.Error("a config without a bucket should be disabled")
	}
	if !(Config{Endpoint: "minio:9000", Bucket: "hsi"}).Enabled() {
		t.Error("expected enabled")
	}
}

func TestNewMirrorDoesNotDial(t *testing.T) {
	m, err := NewMirror(Config{Endpoint: "127.0.0.1:1", Bucket: "hsi", Prefix: "/lab/"})
	if err != nil {
		t.Fatal(err)
	}
	if got := m.Key("s", "a/b.fits"); got != "lab/s/a/b.fits" {
		t.Errorf("unexpected key %s", got)
	}
}
