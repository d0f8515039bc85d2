package models

import "testing"

func TestObjectRef_Validate(t *testing.T) {
	tests := []struct {
		name    string
		ref     ObjectRef
		wantErr bool
	}{
		{"valid", ObjectRef{Bucket: "shots", Key: "a.png"}, false},
		{"empty bucket", ObjectRef{Key: "a.png"}, true},
		{"empty key", ObjectRef{Bucket: "shots"}, true},
		{"both empty", ObjectRef{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.ref.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestObjectRef_ProcessedKey(t *testing.T) {
	tests := []struct {
		key  string
		ext  string
		want string
	}{
		{"a.png", "jpeg", "a.processed.jpeg"},
		{"dir/sub/shot.png", "png", "dir/sub/shot.processed.png"},
		{"noext", "jpeg", "noext.processed.jpeg"},
		{"archive.tar.gz", "png", "archive.tar.processed.png"},
	}
	for _, tt := range tests {
		ref := ObjectRef{Bucket: "shots", Key: tt.key}
		if got := ref.ProcessedKey(tt.ext); got != tt.want {
			t.Errorf("ProcessedKey(%q, %q) = %q, want %q", tt.key, tt.ext, got, tt.want)
		}
	}
}

func TestObjectRef_Title(t *testing.T) {
	ref := ObjectRef{Bucket: "shots", Key: "2021/app/login_screen.png"}
	if got := ref.Title(); got != "login_screen.png" {
		t.Errorf("Title() = %q", got)
	}
}
