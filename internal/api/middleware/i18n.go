package middleware

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"smart-attendance-go/config"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/language"
)

// Translator loads locale files and resolves message keys. Flattened maps
// are kept alongside the bundle so templates can look up dotted keys like
// "attendance.recorded" directly.
type Translator struct {
	bundle       *i18n.Bundle
	localizers   map[string]*i18n.Localizer
	translations map[string]map[string]interface{}
	defaultLang  string
}

// NewTranslator reads every <lang>.json file from the locales directory.
func NewTranslator(cfg config.I18nConfig) (*Translator, error) {
	defaultLang := cfg.DefaultLanguage
	if defaultLang == "" {
		defaultLang = "en"
	}
	localesDir := cfg.LocalesDir
	if localesDir == "" {
		localesDir = "./web/locales"
	}

	bundle := i18n.NewBundle(language.MustParse(defaultLang))
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	t := &Translator{
		bundle:       bundle,
		localizers:   make(map[string]*i18n.Localizer),
		translations: make(map[string]map[string]interface{}),
		defaultLang:  defaultLang,
	}

	entries, err := os.ReadDir(localesDir)
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		langCode := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		filePath := filepath.Join(localesDir, entry.Name())

		if _, err := bundle.LoadMessageFile(filePath); err != nil {
			return nil, err
		}
		t.localizers[langCode] = i18n.NewLocalizer(bundle, langCode)

		raw, err := os.ReadFile(filePath)
		if err != nil {
			return nil, err
		}
		var nested map[string]interface{}
		if err := json.Unmarshal(raw, &nested); err != nil {
			return nil, err
		}
		t.translations[langCode] = flattenMap(nested, "")
	}

	return t, nil
}

// Supported reports whether a locale file was loaded for the language.
func (t *Translator) Supported(lang string) bool {
	_, ok := t.translations[lang]
	return ok
}

// Translate resolves a key for the given language, falling back to the
// default language and finally to the key itself.
func (t *Translator) Translate(lang, key string) string {
	if msgs, ok := t.translations[lang]; ok {
		if val, ok := msgs[key].(string); ok {
			return val
		}
	}
	if msgs, ok := t.translations[t.defaultLang]; ok {
		if val, ok := msgs[key].(string); ok {
			return val
		}
	}
	return key
}

// I18n returns a middleware that resolves the request language from the
// "lang" query parameter or the session cookie and installs a translation
// function under the "t" context key.
func I18n(cfg config.I18nConfig) gin.HandlerFunc {
	translator, err := NewTranslator(cfg)
	if err != nil {
		log.WithError(err).Warn("Failed to load translations, responses will use raw keys")
		return func(c *gin.Context) {
			c.Set("language", cfg.DefaultLanguage)
			c.Set("t", func(key string, args ...interface{}) string { return key })
			c.Next()
		}
	}

	return func(c *gin.Context) {
		session := sessions.Default(c)
		lang := c.Query("lang")

		if lang != "" && translator.Supported(lang) {
			session.Set("language", lang)
			session.Save()
		} else {
			if sessionLang, ok := session.Get("language").(string); ok {
				lang = sessionLang
			}
		}

		if !translator.Supported(lang) {
			lang = translator.defaultLang
		}

		c.Set("language", lang)
		c.Set("translator", translator)
		c.Set("t", func(key string, args ...interface{}) string {
			return translator.Translate(lang, key)
		})

		c.Next()
	}
}

// Translate resolves a key using the translation function installed by the
// I18n middleware. Handlers use this for localized response messages.
func Translate(c *gin.Context, key string) string {
	if fn, ok := c.Get("t"); ok {
		if t, ok := fn.(func(string, ...interface{}) string); ok {
			return t(key)
		}
	}
	return key
}

// flattenMap turns nested locale objects into dotted keys, so that
// {"attendance": {"recorded": "..."}} becomes "attendance.recorded".
func flattenMap(input map[string]interface{}, prefix string) map[string]interface{} {
	result := make(map[string]interface{})
	for k, v := range input {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch child := v.(type) {
		case map[string]interface{}:
			for childKey, childValue := range flattenMap(child, key) {
				result[childKey] = childValue
			}
		default:
			result[key] = v
		}
	}
	return result
}
