package envfiles

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestCollectOverrides(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		want  Overrides
	}{
		{
			name: "no files",
			want: Overrides{},
		},
		{
			name:  "plain port",
			files: map[string]string{".env": "PORT=3200\n"},
			want:  Overrides{Port: 3200},
		},
		{
			name:  "quoted web port",
			files: map[string]string{".env": `WEB_PORT="3201"`},
			want:  Overrides{Port: 3201},
		},
		{
			name:  "first valid port wins",
			files: map[string]string{".env": "PORT=nope\nPORT=3202\nWEB_PORT=3203\n"},
			want:  Overrides{Port: 3202},
		},
		{
			name:  "port derived from url",
			files: map[string]string{".env": "NEXT_PUBLIC_APP_URL='http://localhost:3204'\n"},
			want:  Overrides{Port: 3204, URL: "http://localhost:3204"},
		},
		{
			name:  "last url in file wins",
			files: map[string]string{".env": "NEXT_PUBLIC_APP_URL=http://a.test:3205\nNEXT_PUBLIC_APP_URL=http://b.test:3206\n"},
			want:  Overrides{Port: 3206, URL: "http://b.test:3206"},
		},
		{
			name: "local file is more specific",
			files: map[string]string{
				".env.local": "PORT=3207\n",
				".env":       "PORT=3208\nNEXT_PUBLIC_APP_URL=http://localhost:3208\n",
			},
			want: Overrides{Port: 3207, URL: "http://localhost:3208"},
		},
		{
			name: "scan stops once both are set",
			files: map[string]string{
				".env.local": "PORT=3209\nNEXT_PUBLIC_APP_URL=http://localhost:3209\n",
				".env":       "NEXT_PUBLIC_APP_URL=http://other:4000\n",
			},
			want: Overrides{Port: 3209, URL: "http://localhost:3209"},
		},
		{
			name:  "comments and junk are skipped",
			files: map[string]string{".env": "# PORT=1111\n\nnot a pair\n  PORT = 3210  \n"},
			want:  Overrides{Port: 3210},
		},
		{
			name:  "url without port",
			files: map[string]string{".env": "NEXT_PUBLIC_APP_URL=https://preview.example.com\n"},
			want:  Overrides{URL: "https://preview.example.com"},
		},
		{
			name:  "crlf line endings",
			files: map[string]string{".env": "PORT=3211\r\nNEXT_PUBLIC_APP_URL=http://localhost:3211\r\n"},
			want:  Overrides{Port: 3211, URL: "http://localhost:3211"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range tt.files {
				if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
					t.Fatal(err)
				}
			}
			if got := CollectOverrides(dir); got != tt.want {
				t.Errorf("CollectOverrides = %+v; want %+v", got, tt.want)
			}
		})
	}
}

func TestURLPort(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"http://localhost:3100", 3100},
		{"https://example.com", 0},
		{"localhost:3100", 0},
		{"::not a url", 0},
		{"http://localhost:70000", 0},
	}
	for _, tt := range tests {
		if got := URLPort(tt.in); got != tt.want {
			t.Errorf("URLPort(%q) = %d; want %d", tt.in, got, tt.want)
		}
	}
}

func TestStripNodeEnv(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"untouched", "PORT=3100\n", "PORT=3100\n"},
		{"single line", "NODE_ENV=production\nPORT=3100\n", "\nPORT=3100\n"},
		{"indented", "A=1\n  NODE_ENV = test\nB=2\n", "A=1\n\nB=2\n"},
		{"blank runs collapse", "A=1\n\nNODE_ENV=production\n\nB=2\n", "A=1\n\nB=2\n"},
		{"similar key kept", "MY_NODE_ENV=x\n", "MY_NODE_ENV=x\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripNodeEnv(tt.in); got != tt.want {
				t.Errorf("StripNodeEnv(%q) = %q; want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitize(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		".env":             "NODE_ENV=production\nPORT=3100\n",
		".env.local":       "PORT=3101\n",
		".env.test":        "NODE_ENV=test\n",
		".env.staging":     "NODE_ENV=production\n",
		".env.development": "A=1\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	var logs []string
	changed, err := Sanitize(dir, func(l string) { logs = append(logs, l) })
	if err != nil {
		t.Fatalf("Sanitize failed: %v", err)
	}
	if !reflect.DeepEqual(changed, []string{".env", ".env.test"}) {
		t.Errorf("unexpected changed files %v", changed)
	}
	if len(logs) != 2 || logs[0] != "Sanitized .env: removed NODE_ENV" {
		t.Errorf("unexpected logs %v", logs)
	}

	data, _ := os.ReadFile(filepath.Join(dir, ".env"))
	if string(data) != "\nPORT=3100\n" {
		t.Errorf(".env = %q", data)
	}
	// Files outside the fixed list are left alone
	data, _ = os.ReadFile(filepath.Join(dir, ".env.staging"))
	if string(data) != "NODE_ENV=production\n" {
		t.Errorf(".env.staging was modified: %q", data)
	}
}

func TestMerge(t *testing.T) {
	base := []string{"PATH=/bin", "PORT=1", "HOME=/root"}
	got := Merge(base, map[string]string{
		"PORT":     "3100",
		"NODE_ENV": "development",
		"A":        "b",
	})
	want := []string{"PATH=/bin", "PORT=3100", "HOME=/root", "A=b", "NODE_ENV=development"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Merge = %v; want %v", got, want)
	}

	if v, ok := Lookup(got, "PORT"); !ok || v != "3100" {
		t.Errorf("Lookup(PORT) = %q, %v", v, ok)
	}
	if _, ok := Lookup(got, "MISSING"); ok {
		t.Errorf("Lookup(MISSING) should fail")
	}
}
