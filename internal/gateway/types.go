package gateway

// EpubMetadata is the bibliographic data the gateway extracts from an e-book.
type EpubMetadata struct {
	Title       string   `json:"title"`
	Authors     []string `json:"authors"`
	Description string   `json:"description"`
	Language    string   `json:"language,omitempty"`
	Publisher   string   `json:"publisher,omitempty"`
}

// EpubResult is the outcome of an e-book ingestion.
type EpubResult struct {
	Text       string       `json:"text"`
	Metadata   EpubMetadata `json:"metadata"`
	CoverImage string       `json:"cover_image,omitempty"` // data URI
}

// StatusReport is the body of GET /status.
type StatusReport struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Uptime  string `json:"uptime,omitempty"`
}

// Raw API payloads (internal)

type uploadResponse struct {
	ImageFilename string `json:"image_filename"`
}

type ocrRequest struct {
	ImageFilename string `json:"image_filename"`
	OCREngine     string `json:"ocr_engine"`
}

type ocrResponse struct {
	Text string `json:"text"`
}

type ttsRequest struct {
	Text      string `json:"text"`
	TTSEngine string `json:"tts_engine"`
}

type ttsResponse struct {
	Success  *bool  `json:"success"`
	Message  string `json:"message"`
	AudioURL string `json:"audio_url"`
}

// errorBody covers both error field conventions the gateway uses.
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (b errorBody) text() string {
	if b.Message != "" {
		return b.Message
	}
	return b.Error
}
