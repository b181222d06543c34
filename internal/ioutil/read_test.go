package ioutil

import (
	"errors"
	"strings"
	"testing"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func TestReadLimited(t *testing.T) {
	got := ReadLimited(strings.NewReader("hello world"), 5)
	if got != "hello" {
		t.Errorf("ReadLimited = %q, want hello", got)
	}

	got = ReadLimited(strings.NewReader("short"), 100)
	if got != "short" {
		t.Errorf("ReadLimited = %q, want short", got)
	}
}

func TestReadLimited_Failure(t *testing.T) {
	got := ReadLimited(failingReader{}, 10)
	if !strings.Contains(got, "broken pipe") {
		t.Errorf("ReadLimited = %q, want read failure description", got)
	}
}
