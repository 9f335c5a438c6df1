package templates

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderExpirationWarningEmail(t *testing.T) {
	out := RenderExpirationWarningEmail("License expiring soon", ExpirationEmail{
		RecipientName:  "Sato <script>",
		DocumentLabel:  "driver's license",
		ExpirationDate: "2025年03月15日",
		Days:           5,
	})

	assert.Contains(t, out, "2025年03月15日")
	assert.Contains(t, out, "5 day(s) remaining")
	assert.Contains(t, out, "Sato &lt;script&gt;")
	assert.False(t, strings.Contains(out, "<script>"))
}

func TestRenderExpirationCriticalEmail(t *testing.T) {
	out := RenderExpirationCriticalEmail("Vehicle inspection expired", ExpirationEmail{
		RecipientName:  "Admin",
		OwnerName:      "Suzuki",
		DocumentLabel:  "vehicle inspection",
		ExpirationDate: "2025年01月01日",
		Days:           -3,
	})

	assert.Contains(t, out, "3 day(s) ago")
	assert.Contains(t, out, "Suzuki")
}

func TestRenderGenericEmailConvertsNewlines(t *testing.T) {
	out := RenderGenericEmail("Hello", "line one\nline two")
	assert.Contains(t, out, "line one<br>line two")
}
