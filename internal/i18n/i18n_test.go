package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/roshita-planner/internal/model"
)

func TestUnknownLanguageFallsBack(t *testing.T) {
	c := For("fr", model.LanguageArabic)
	assert.Equal(t, model.LanguageArabic, c.Language())
	assert.True(t, c.RTL())

	c = For("", model.LanguageEnglish)
	assert.Equal(t, "Appointments", c.T(BoardTitle))
}

func TestCatalogsCoverSameKeys(t *testing.T) {
	en := catalogs[model.LanguageEnglish]
	ar := catalogs[model.LanguageArabic]
	for key := range en {
		assert.Contains(t, ar, key)
	}
	assert.Len(t, ar, len(en))
}

func TestStatusAndServiceLabels(t *testing.T) {
	c := For(model.LanguageEnglish, model.LanguageArabic)
	assert.Equal(t, "Cancelled by patient", c.Status(model.StatusCancelledByPatient))
	assert.Equal(t, "Did not attend", c.Status("not  attend"))
	assert.Equal(t, "Mystery", c.Status("Mystery"))
	assert.Equal(t, "Shelter and operation", c.ServiceType(model.ServiceShelterOperation))
	assert.Equal(t, "missing.key", c.T("missing.key"))
}
