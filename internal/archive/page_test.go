package archive

import "testing"

func TestEntryName(t *testing.T) {
	tests := []struct {
		index, total int
		ext          string
		want         string
	}{
		{0, 12, ".jpg", "0001.jpg"},
		{11, 12, ".png", "0012.png"},
		{0, 9999, ".jpg", "0001.jpg"},
		{0, 10000, ".jpg", "00001.jpg"},
		{41, 100, "webp", "0042.webp"},
		{0, 1, "", "0001.jpg"},
	}
	for _, tt := range tests {
		if got := EntryName(tt.index, tt.total, tt.ext); got != tt.want {
			t.Errorf("EntryName(%d, %d, %q) = %q, want %q", tt.index, tt.total, tt.ext, got, tt.want)
		}
	}
}

func TestExtensionFor(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	tests := []struct {
		name        string
		url         string
		contentType string
		data        []byte
		want        string
	}{
		{"url extension", "https://cdn.example/ch1/01.PNG?token=x", "image/jpeg", nil, ".png"},
		{"jpeg kept", "https://cdn.example/01.jpeg", "", nil, ".jpeg"},
		{"content type", "https://cdn.example/page?id=1", "image/webp; charset=binary", nil, ".webp"},
		{"sniffed", "https://cdn.example/page/1", "application/octet-stream", png, ".png"},
		{"fallback", "https://cdn.example/page/1", "", []byte("????"), ".jpg"},
		{"bad url", "://", "", nil, ".jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtensionFor(tt.url, tt.contentType, tt.data); got != tt.want {
				t.Fatalf("ExtensionFor = %q, want %q", got, tt.want)
			}
		})
	}
}
