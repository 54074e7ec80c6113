// Package ai содержит клиент языковой модели для первичной диагностики заявок
// и эвристику, которая работает без модели.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// DiagnoseInput — данные заявки, которые видит модель.
type DiagnoseInput struct {
	Category     string
	Description  string
	HowLong      string
	RunningWater bool
	Sparks       bool
	BurningSmell bool
	GasSmell     bool
	MediaCount   int
}

// Diagnosis — ответ модели. Цены в центах.
type Diagnosis struct {
	Severity               string   `json:"severity"`
	Confidence             int      `json:"confidence"`
	ProbableIssue          string   `json:"probable_issue"`
	SafetyInstructions     []string `json:"safety_instructions"`
	EstimatedDurationHours float64  `json:"estimated_duration_hours"`
	PriceMin               int64    `json:"price_min_cents"`
	PriceMax               int64    `json:"price_max_cents"`
}

// Client обращается к OpenAI-совместимому API.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient создаёт экземпляр клиента.
func NewClient(baseURL, model, apiKey string) *Client {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WithHTTPClient заменяет HTTP-клиент. Используется в тестах.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

const diagnosePrompt = `Ты диспетчер сервиса срочного ремонта на дому. По описанию поломки верни только JSON:
{"severity":"low|medium|high","confidence":0-100,"probable_issue":"...","safety_instructions":["..."],
"estimated_duration_hours":1.5,"price_min_cents":0,"price_max_cents":0}
Цены указывай в евроцентах за работу мастера без материалов.`

// Diagnose запрашивает у модели оценку заявки.
func (c *Client) Diagnose(ctx context.Context, in DiagnoseInput) (*Diagnosis, error) {
	var facts strings.Builder
	fmt.Fprintf(&facts, "Категория: %s\n", in.Category)
	fmt.Fprintf(&facts, "Описание: %s\n", strings.TrimSpace(in.Description))
	if in.HowLong != "" {
		fmt.Fprintf(&facts, "Как давно: %s\n", in.HowLong)
	}
	flags := []struct {
		set   bool
		label string
	}{
		{in.RunningWater, "течёт вода"},
		{in.Sparks, "искрит"},
		{in.BurningSmell, "запах гари"},
		{in.GasSmell, "запах газа"},
	}
	for _, f := range flags {
		if f.set {
			fmt.Fprintf(&facts, "Признак: %s\n", f.label)
		}
	}
	if in.MediaCount > 0 {
		fmt.Fprintf(&facts, "Приложено фото: %d\n", in.MediaCount)
	}

	content, err := c.chatCompletionWithOptions(ctx, []map[string]string{
		{"role": "system", "content": diagnosePrompt},
		{"role": "user", "content": facts.String()},
	}, 512, 0.2)
	if err != nil {
		return nil, err
	}

	var d Diagnosis
	if err := parseJSONFromText(content, &d); err != nil {
		return nil, fmt.Errorf("ai: не удалось разобрать ответ модели: %w", err)
	}
	d.Severity = strings.ToLower(strings.TrimSpace(d.Severity))
	return &d, nil
}

// chatCompletionWithOptions выполняет запрос к chat/completions.
func (c *Client) chatCompletionWithOptions(ctx context.Context, messages []map[string]string, maxTokens int, temperature float64) (string, error) {
	if c.baseURL == "" {
		return "", fmt.Errorf("ai: baseURL не задан")
	}

	payload := map[string]any{
		"model":       c.model,
		"messages":    messages,
		"max_tokens":  maxTokens,
		"temperature": temperature,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	url := c.baseURL
	if !strings.HasSuffix(url, "/") {
		url += "/"
	}
	url += "chat/completions"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errorBody map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&errorBody)
		return "", fmt.Errorf("ai: код ответа %d: %v", resp.StatusCode, errorBody)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("ai: пустой ответ")
	}

	return result.Choices[0].Message.Content, nil
}

var codeBlockRe = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")

// parseJSONFromText извлекает JSON-объект из ответа, который может быть обёрнут в markdown.
func parseJSONFromText(text string, out any) error {
	if m := codeBlockRe.FindStringSubmatch(text); len(m) > 1 {
		text = m[1]
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return fmt.Errorf("ai: в ответе нет JSON-объекта")
	}
	return json.Unmarshal([]byte(text[start:end+1]), out)
}
