package content

import "testing"

func TestImageSource(t *testing.T) {
	tests := []struct {
		name string
		img  *Image
		want string
	}{
		{"url_wins", &Image{URL: "https://x/y.png", Data: "AAAA"}, "https://x/y.png"},
		{"data_default_png", &Image{Data: "AAAA"}, "data:image/png;base64,AAAA"},
		{"data_declared_mime", &Image{Data: "AAAA", MimeType: "image/jpeg"}, "data:image/jpeg;base64,AAAA"},
		{"data_short_format", &Image{Data: "AAAA", MimeType: "webp"}, "data:image/webp;base64,AAAA"},
		{"data_uri_passthrough", &Image{Data: "data:image/gif;base64,R0"}, "data:image/gif;base64,R0"},
		{"placeholder", &Image{}, PlaceholderImage},
		{"nil", nil, PlaceholderImage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.img.Source(); got != tt.want {
				t.Errorf("Source() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestImageAltAndFormatField(t *testing.T) {
	v := Classify([]any{map[string]any{"data": "AAAA", "format": "jpeg", "alt": "chart"}, map[string]any{"url": nil}})
	if v.Kind != KindMultiModal {
		t.Fatalf("Kind = %s", v.Kind)
	}
	first, second := v.Items[0].Image, v.Items[1].Image
	if first.Source() != "data:image/jpeg;base64,AAAA" || first.AltText() != "chart" {
		t.Fatalf("first image = %q / %q", first.Source(), first.AltText())
	}
	if second.Source() != PlaceholderImage || second.AltText() != DefaultImageAlt {
		t.Fatalf("second image = %q / %q", second.Source(), second.AltText())
	}
}

func TestStringify(t *testing.T) {
	if got := Stringify(map[string]any{"b": 1, "a": "<x>"}); got != "{\n  \"a\": \"<x>\",\n  \"b\": 1\n}" {
		t.Fatalf("Stringify = %q", got)
	}
	if got := StringifyCompact([]any{1, "a"}); got != `[1,"a"]` {
		t.Fatalf("StringifyCompact = %q", got)
	}
	if got := Stringify(nil); got != "null" {
		t.Fatalf("Stringify(nil) = %q", got)
	}
	if got := Stringify(make(chan int)); got == "" {
		t.Fatal("unmarshalable value must still stringify")
	}
	if pretty, ok := PrettyJSON(`{"a":1}`); !ok || pretty != "{\n  \"a\": 1\n}" {
		t.Fatalf("PrettyJSON = %q, %v", pretty, ok)
	}
	if _, ok := PrettyJSON("plain log line"); ok {
		t.Fatal("plain text is not JSON")
	}
}
