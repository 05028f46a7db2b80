package usecase

import (
	"fmt"
	"strings"

	"github.com/scontrini/backend/internal/domain"
)

// Schema names double as stage names in logs and metrics
const (
	schemaInterpretation = "interpretation"
	schemaSelection      = "selection"
	schemaValidation     = "validation"
)

const interpretSystemPrompt = `Sei un esperto di prodotti da supermercato italiani. Ricevi una riga RAW di scontrino e devi identificare un singolo prodotto.

Una riga RAW contiene di solito BRAND, PRODOTTO e FORMATO, spesso abbreviati ("LAT" = latte, "SANNA" = Sant'Anna, "ACQ FR" = acqua frizzante). Molti codici sono sigle interne di cassa e non sono brand.

Regole:
1. Parti dall'elemento più sicuro (brand o prodotto) e usalo per vincolare l'altro.
2. size contiene SOLO la quantità numerica ("1.5", "500"); unit_type SOLO l'unità ("L", "ml", "g", "kg", "pz").
3. Con un multipack come "1.5X6" il formato è 1.5 L, non 6.
4. Solo frutta e verdura, gastronomia, macelleria, pescheria e panetteria non hanno brand: in quel caso lascia brand a null.
5. Classifica in categoria e sottocategoria coerenti (Bevande, Alimentari, Freschi, Surgelati, Pulizia Casa, Igiene Personale, Non Alimentari).
6. Genera da 4 a 8 tag minuscoli: tipo prodotto, ingredienti, caratteristiche dietetiche, fascia d'età, occasione d'uso.
7. Non inventare dettagli non visibili nella riga. Se sei incerto preferisci un'ipotesi generica.

Rispondi solo con JSON:
{"hypothesis": "...", "brand": "... o null", "product_type": "...", "size": "... o null", "unit_type": "... o null", "category": "...", "subcategory": "...", "tags": ["..."], "reasoning": "..."}`

const selectSystemPrompt = `Sei un esperto di prodotti da supermercato. Scegli il candidato più verosimile per la riga di scontrino.

Criteri in ordine di priorità:
1. Brand: se la riga o l'interpretazione citano un brand, privilegia i candidati con quel brand.
2. Tipo di prodotto: deve corrispondere.
3. Formato: se indicato deve corrispondere (1.5L non è 500ml).
4. Punteggio: a parità di criteri scegli il punteggio più alto.

Se tutti i candidati sono improbabili scegli comunque il meno peggio.

Rispondi solo con JSON: {"selected_index": 0, "reasoning": "..."} dove selected_index è l'indice (da 0) del candidato scelto.`

const validateSystemPrompt = `Sei un validatore di prodotti da supermercato. Valuta quanto è probabile che la riga RAW di scontrino corrisponda al prodotto selezionato.

Pesi: tipo di prodotto 40%, brand 35%, formato 15%, plausibilità generale 10%.

Scala:
- 0.9-1.0 corrispondenza quasi certa
- 0.8-0.9 molto probabile
- 0.6-0.8 probabile, da confermare
- 0.4-0.6 incerta
- 0.0-0.4 improbabile

Se l'interpretazione è incoerente o il tipo di prodotto non corrisponde assegna un punteggio basso (0.1-0.4).

Flag: brand_mismatch se il brand non corrisponde, size_uncertain se il formato è ambiguo, ambiguous se l'interpretazione generale è ambigua.

Rispondi solo con JSON: {"confidence_score": 0.85, "reasoning": "...", "flags": {"brand_mismatch": false, "size_uncertain": false, "ambiguous": false}}`

var interpretationSchema = &domain.ResponseSchema{
	Name: schemaInterpretation,
	Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"hypothesis":   map[string]any{"type": "string"},
			"brand":        map[string]any{"type": []string{"string", "null"}},
			"product_type": map[string]any{"type": "string"},
			"size":         map[string]any{"type": []string{"string", "null"}},
			"unit_type":    map[string]any{"type": []string{"string", "null"}},
			"category":     map[string]any{"type": "string"},
			"subcategory":  map[string]any{"type": "string"},
			"tags": map[string]any{
				"type":     "array",
				"items":    map[string]any{"type": "string"},
				"minItems": minHypothesisTags,
				"maxItems": maxHypothesisTags,
			},
			"reasoning": map[string]any{"type": "string"},
		},
		"required": []string{"hypothesis", "product_type", "category", "tags", "reasoning"},
	},
}

var selectionSchema = &domain.ResponseSchema{
	Name: schemaSelection,
	Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"selected_index": map[string]any{"type": "integer", "minimum": 0},
			"reasoning":      map[string]any{"type": "string"},
		},
		"required": []string{"selected_index", "reasoning"},
	},
}

var validationSchema = &domain.ResponseSchema{
	Name: schemaValidation,
	Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"confidence_score": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
			"reasoning":        map[string]any{"type": "string"},
			"flags": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"brand_mismatch": map[string]any{"type": "boolean"},
					"size_uncertain": map[string]any{"type": "boolean"},
					"ambiguous":      map[string]any{"type": "boolean"},
				},
			},
		},
		"required": []string{"confidence_score", "reasoning"},
	},
}

func buildInterpretPrompt(req domain.ResolveRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "RAW: %q", req.RawName)
	if req.StoreName != "" {
		fmt.Fprintf(&b, "\nSTORE: %q", req.StoreName)
	}
	if req.Price != nil && *req.Price > 0 {
		fmt.Fprintf(&b, "\nPRICE: €%.2f", *req.Price)
	}
	return b.String()
}

func buildSelectPrompt(rawName string, h domain.Hypothesis, candidates []domain.Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "RAW SCONTRINO: %q\n", rawName)
	fmt.Fprintf(&b, "INTERPRETAZIONE: %q\n\nCANDIDATI:\n", h.Text)
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. %s", i, c.Product.CanonicalName)
		if c.Product.Brand != "" {
			fmt.Fprintf(&b, " (%s)", c.Product.Brand)
		}
		if c.Product.Size != "" {
			fmt.Fprintf(&b, " - %s", c.Product.Size)
			if c.Product.UnitType != "" {
				fmt.Fprintf(&b, " %s", c.Product.UnitType)
			}
		}
		fmt.Fprintf(&b, " [score: %.3f]\n", c.BusinessScore)
	}
	return b.String()
}

func buildValidatePrompt(rawName string, h domain.Hypothesis, p domain.NormalizedProduct) string {
	var b strings.Builder
	fmt.Fprintf(&b, "RAW SCONTRINO: %q\n", rawName)
	fmt.Fprintf(&b, "INTERPRETAZIONE: %q\n\nPRODOTTO SELEZIONATO:\n", h.Text)
	fmt.Fprintf(&b, "  Nome: %s\n", p.CanonicalName)
	if p.Brand != "" {
		fmt.Fprintf(&b, "  Brand: %s\n", p.Brand)
	}
	if p.Category != "" {
		fmt.Fprintf(&b, "  Categoria: %s\n", p.Category)
	}
	if p.Size != "" {
		fmt.Fprintf(&b, "  Formato: %s", p.Size)
		if p.UnitType != "" {
			fmt.Fprintf(&b, " %s", p.UnitType)
		}
		b.WriteString("\n")
	}
	return b.String()
}
