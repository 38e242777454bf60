package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lutrinapp/lutrin/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(config.GatewayConfig{BaseURL: server.URL, APIKey: "secret"}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	// Override HTTP client to use test server
	client.http = server.Client()
	t.Cleanup(client.Close)

	return client, server
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestNew_RejectsInvalidURL(t *testing.T) {
	_, err := New(config.GatewayConfig{BaseURL: "localhost"}, slog.New(slog.DiscardHandler))
	assert.Error(t, err)
}

func TestClient_UploadImage(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/upload", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))

		file, header, err := r.FormFile("image")
		require.NoError(t, err)
		data, _ := io.ReadAll(file)
		assert.Equal(t, []byte("jpeg-bytes"), data)
		assert.Contains(t, header.Filename, ".jpg")

		writeJSON(w, http.StatusOK, map[string]string{"image_filename": "capture_01.jpg"})
	})

	name, err := client.UploadImage(context.Background(), []byte("jpeg-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "capture_01.jpg", name)
}

func TestClient_UploadImage_MissingName(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{})
	})

	_, err := client.UploadImage(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestClient_RunOCR(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ocr", r.URL.Path)
		var req ocrRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, ocrRequest{ImageFilename: "capture_01.jpg", OCREngine: "tesseract"}, req)

		writeJSON(w, http.StatusOK, map[string]string{"text": "Il était une fois"})
	})

	text, err := client.RunOCR(context.Background(), "capture_01.jpg", "tesseract")
	require.NoError(t, err)
	assert.Equal(t, "Il était une fois", text)
}

func TestClient_RunTTS(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		status      int
		body        any
		wantURL     string
		wantErr     error
		wantMessage string
		wantCalls   int32
	}{
		{
			name:      "success",
			text:      "Bonjour",
			status:    http.StatusOK,
			body:      map[string]any{"audio_url": "/audio/audio_1.wav"},
			wantURL:   "/audio/audio_1.wav",
			wantCalls: 1,
		},
		{
			name:      "blank text never reaches the gateway",
			text:      " \n\t ",
			wantErr:   ErrEmptyText,
			wantCalls: 0,
		},
		{
			name:      "gateway reports empty text",
			text:      "​",
			status:    http.StatusOK,
			body:      map[string]any{"success": false, "message": "Le texte fourni est vide."},
			wantErr:   ErrEmptyText,
			wantCalls: 1,
		},
		{
			name:        "auth failure is not empty text",
			text:        "Bonjour",
			status:      http.StatusUnauthorized,
			body:        map[string]any{"message": "No API key provided"},
			wantMessage: "No API key provided",
			wantCalls:   1,
		},
		{
			name:        "provider failure is not empty text",
			text:        "Bonjour",
			status:      http.StatusInternalServerError,
			body:        map[string]any{"message": "TTS provider returned an empty response"},
			wantMessage: "TTS provider returned an empty response",
			wantCalls:   1,
		},
		{
			name:        "empty text sentence on an error status stays an error",
			text:        "Bonjour",
			status:      http.StatusInternalServerError,
			body:        map[string]any{"message": "Le texte fourni est vide."},
			wantMessage: "Le texte fourni est vide.",
			wantCalls:   1,
		},
		{
			name:        "success false keeps the message",
			text:        "Bonjour",
			status:      http.StatusOK,
			body:        map[string]any{"success": false, "message": "Le service TTS n'est pas initialisé"},
			wantMessage: "Le service TTS n'est pas initialisé",
			wantCalls:   1,
		},
		{
			name:        "server error with error field",
			text:        "Bonjour",
			status:      http.StatusInternalServerError,
			body:        map[string]any{"error": "modèle manquant"},
			wantMessage: "modèle manquant",
			wantCalls:   1,
		},
		{
			name:      "missing audio url",
			text:      "Bonjour",
			status:    http.StatusOK,
			body:      map[string]any{},
			wantErr:   ErrMalformedResponse,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				assert.Equal(t, "/tts", r.URL.Path)
				writeJSON(w, tt.status, tt.body)
			})

			url, err := client.RunTTS(context.Background(), tt.text, "piper")

			assert.Equal(t, tt.wantCalls, calls.Load())
			if tt.wantURL != "" {
				require.NoError(t, err)
				assert.Equal(t, tt.wantURL, url)
				return
			}
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.wantMessage != "" {
				assert.Equal(t, tt.wantMessage, MessageOf(err))
				assert.NotErrorIs(t, err, ErrEmptyText)
				var gwErr *Error
				assert.ErrorAs(t, err, &gwErr)
			}
		})
	}
}

func TestClient_FetchStaticText(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/file/test 01.txt", r.URL.Path)
		_, _ = w.Write([]byte("Texte de test"))
	})

	text, err := client.FetchStaticText(context.Background(), "test 01.txt")
	require.NoError(t, err)
	assert.Equal(t, "Texte de test", text)
}

func TestClient_FetchStaticText_NotFound(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Fichier non trouvé."})
	})

	_, err := client.FetchStaticText(context.Background(), "absent.txt")
	var gwErr *Error
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, http.StatusNotFound, gwErr.Status)
	assert.Equal(t, "Fichier non trouvé.", gwErr.Message)
}

func TestClient_FetchAudio_ResolvesRelativeURL(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/audio_1.wav", r.URL.Path)
		_, _ = w.Write([]byte("RIFF...."))
	})

	var buf bytes.Buffer
	require.NoError(t, client.FetchAudio(context.Background(), "/audio/audio_1.wav", &buf))
	assert.Equal(t, "RIFF....", buf.String())
}

func TestClient_Status(t *testing.T) {
	t.Run("online", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "online", "message": "API Lutrin prête"})
		})

		report, err := client.Status(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "API Lutrin prête", report.Message)
	})

	t.Run("non json body still online", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("ok"))
		})

		report, err := client.Status(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "online", report.Status)
	})

	t.Run("error status", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})

		_, err := client.Status(context.Background())
		var gwErr *Error
		require.ErrorAs(t, err, &gwErr)
		assert.Equal(t, http.StatusText(http.StatusServiceUnavailable), gwErr.Message)
	})

	t.Run("unreachable", func(t *testing.T) {
		client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
		server.Close()

		_, err := client.Status(context.Background())
		assert.ErrorIs(t, err, ErrUnreachable)
	})
}

func TestClient_AddEpub(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/epub/add", r.URL.Path)
		file, header, err := r.FormFile("epub_file")
		require.NoError(t, err)
		assert.Equal(t, "horla.epub", header.Filename)
		data, _ := io.ReadAll(file)
		assert.Equal(t, "PK\x03\x04", string(data))

		writeJSON(w, http.StatusOK, map[string]any{
			"text": "I\n\nII",
			"metadata": map[string]any{
				"title":       "Le Horla",
				"authors":     []string{"Guy de Maupassant"},
				"description": "<p>Un <strong>journal</strong> intime.</p>",
			},
			"cover_image": "data:image/jpeg;base64,AAAA",
		})
	})

	result, err := client.AddEpub(context.Background(), "horla.epub", bytes.NewReader([]byte("PK\x03\x04")))
	require.NoError(t, err)
	assert.Equal(t, "Le Horla", result.Metadata.Title)
	assert.Equal(t, []string{"Guy de Maupassant"}, result.Metadata.Authors)
	assert.Equal(t, "Un **journal** intime.", result.Metadata.Description)
	assert.Equal(t, "I\n\nII", result.Text)
	assert.Equal(t, "data:image/jpeg;base64,AAAA", result.CoverImage)
}

func TestHTMLToText_PlainPassesThrough(t *testing.T) {
	assert.Equal(t, "Pas de balise < ici", htmlToText("Pas de balise < ici"))
	assert.Equal(t, "", htmlToText(""))
}
