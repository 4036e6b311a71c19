package a11y

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsWebviewTypeByExplicitType(t *testing.T) {
	st := SubTarget{Type: "webview", URL: "https://example.com"}
	assert.True(t, isWebviewType(st))
}

func TestIsWebviewTypeByURLPattern(t *testing.T) {
	st := SubTarget{Type: "other", URL: "vscode-webview://abc123/index.html"}
	assert.True(t, isWebviewType(st))

	st2 := SubTarget{Type: "other", URL: "https://example.com/page?extensionId=foo.bar"}
	assert.True(t, isWebviewType(st2))
}

func TestIsWebviewTypeFalseForOrdinaryPage(t *testing.T) {
	st := SubTarget{Type: "page", URL: "https://example.com"}
	assert.False(t, isWebviewType(st))
}
