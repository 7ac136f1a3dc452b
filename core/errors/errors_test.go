package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestNotFoundError(t *testing.T) {
	tests := []struct {
		name     string
		err      *NotFoundError
		wantMsg  string
		wantBase error
	}{
		{
			name:     "with ID",
			err:      &NotFoundError{Resource: "archive", ID: "gsa"},
			wantMsg:  "archive not found: gsa",
			wantBase: ErrNotFound,
		},
		{
			name:     "without ID",
			err:      &NotFoundError{Resource: "document"},
			wantMsg:  "document not found",
			wantBase: ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
			if got := tt.err.Unwrap(); !errors.Is(got, tt.wantBase) {
				t.Errorf("Unwrap() = %v, want %v", got, tt.wantBase)
			}
		})
	}

	t.Run("with underlying error", func(t *testing.T) {
		underlyingErr := fmt.Errorf("disk error")
		err := &NotFoundError{Resource: "node", ID: "12", Err: underlyingErr}
		if got := err.Unwrap(); got != underlyingErr {
			t.Errorf("Unwrap() = %v, want %v", got, underlyingErr)
		}
	})
}

func TestValidationError(t *testing.T) {
	err := NewValidation("archive", "document must be in exactly one archive")
	if got, want := err.Error(), "validation failed for archive: document must be in exactly one archive"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrInvalidInput) {
		t.Error("ValidationError should unwrap to ErrInvalidInput")
	}

	bare := &ValidationError{Message: "bad"}
	if got, want := bare.Error(), "validation failed: bad"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestParseError(t *testing.T) {
	tests := []struct {
		name    string
		err     *ParseError
		wantMsg string
	}{
		{
			name:    "path and line",
			err:     &ParseError{Format: "descriptor", Path: "faust://xml/document/a.xml", Line: 7, Message: "boom"},
			wantMsg: "failed to parse descriptor at faust://xml/document/a.xml:7: boom",
		},
		{
			name:    "path only",
			err:     &ParseError{Format: "descriptor", Path: "a.xml", Message: "boom"},
			wantMsg: "failed to parse descriptor at a.xml: boom",
		},
		{
			name:    "message from cause",
			err:     &ParseError{Format: "TEI", Err: fmt.Errorf("unexpected EOF")},
			wantMsg: "failed to parse TEI: unexpected EOF",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}

	t.Run("unwraps to validation cause", func(t *testing.T) {
		cause := NewValidation("archive", "missing")
		err := &ParseError{Format: "descriptor", Message: "x", Err: cause}
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatal("errors.As should find the ValidationError")
		}
		if ve.Field != "archive" {
			t.Errorf("Field = %q, want archive", ve.Field)
		}
	})

	t.Run("defaults to invalid input", func(t *testing.T) {
		if !errors.Is(NewParse("descriptor", "", "x"), ErrInvalidInput) {
			t.Error("ParseError without cause should unwrap to ErrInvalidInput")
		}
	})
}

func TestStorageError(t *testing.T) {
	if NewStorage("commit", nil) != nil {
		t.Error("NewStorage(nil) should return nil")
	}
	cause := fmt.Errorf("database is locked")
	err := NewStorage("commit", cause)
	if !errors.Is(err, ErrStorage) {
		t.Error("StorageError should match ErrStorage")
	}
	if !errors.Is(err, cause) {
		t.Error("StorageError should match its cause")
	}
	if got, want := err.Error(), "storage commit failed: database is locked"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestIOError(t *testing.T) {
	cause := fmt.Errorf("permission denied")
	err := NewIO("open", "/tmp/x.xml", cause)
	if got, want := err.Error(), "failed to open /tmp/x.xml: permission denied"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, cause) {
		t.Error("IOError should unwrap to cause")
	}
}

func TestUnsupportedError(t *testing.T) {
	err := NewUnsupported("scheme", "http")
	if got, want := err.Error(), "unsupported scheme: http"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrUnsupported) {
		t.Error("UnsupportedError should unwrap to ErrUnsupported")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "ctx") != nil {
		t.Error("Wrap(nil) should return nil")
	}
	if Wrapf(nil, "ctx %d", 1) != nil {
		t.Error("Wrapf(nil) should return nil")
	}
	base := NewNotFound("archive", "x")
	err := Wrapf(base, "document %d", 42)
	if got, want := err.Error(), "document 42: archive not found: x"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !Is(err, ErrNotFound) {
		t.Error("wrapped error should match ErrNotFound")
	}
	var nf *NotFoundError
	if !As(err, &nf) {
		t.Error("As should find NotFoundError")
	}
}
