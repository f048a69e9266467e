package assetkey

import "testing"

func TestFromURLFlattensPath(t *testing.T) {
	cases := map[string]string{
		"/textures/hero.png":                          "texturesHeroPng",
		"http://localhost:5000/textures/hero.png":     "texturesHeroPng",
		"/textures/bg_tavern_bar.ktx2":                "texturesBgTavernBarKtx2",
		"/Textures/UI/Big-Button.PNG":                 "texturesUiBigButtonPng",
		"/textures/animations/Duelist/frame_001.ktx2": "texturesAnimationsDuelistFrame001Ktx2",
		"/audio/music%20loop.mp3":                     "audioMusicLoopMp3",
		"textures/hero.png":                           "texturesHeroPng",
		"https://cdn.example.com/a//b/__c.png":        "aBCPng",
		"/sfx/café.ogg":                               "sfxCafOgg",
	}
	for raw, want := range cases {
		if got := FromURL(raw); got != want {
			t.Errorf("FromURL(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestFromURLIgnoresQueryString(t *testing.T) {
	a := FromURL("/textures/hero.png?v=1")
	b := FromURL("/textures/hero.png?v=2#frag")
	if a != b || a != "texturesHeroPng" {
		t.Fatalf("query string should not change key: %q vs %q", a, b)
	}
}

func TestFromURLIsDeterministic(t *testing.T) {
	raw := "http://localhost/textures/cards/pack_01.png"
	if FromURL(raw) != FromURL(raw) {
		t.Fatalf("key derivation should be stable")
	}
}

func TestFromURLMalformedYieldsEmptyKey(t *testing.T) {
	for _, raw := range []string{"", "   ", "/bad%zzescape.png", "http://[::1"} {
		if got := FromURL(raw); got != "" {
			t.Errorf("FromURL(%q) = %q, want empty", raw, got)
		}
	}
	if got := FromURL("/"); got != "" {
		t.Errorf("root path should map to empty key, got %q", got)
	}
}

func TestMemoReturnsSameKey(t *testing.T) {
	var memo Memo
	first := memo.Key("/textures/hero.png")
	second := memo.Key("/textures/hero.png")
	if first != "texturesHeroPng" || second != first {
		t.Fatalf("memo mismatch: %q %q", first, second)
	}
}
