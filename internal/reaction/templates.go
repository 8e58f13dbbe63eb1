package reaction

import (
	"fmt"
	"strconv"

	"github.com/p-n-ai/pai-compass/internal/lookup"
	"github.com/p-n-ai/pai-compass/internal/solo"
)

// Facts are the values a task template may render.
type Facts struct {
	Site      string
	Address   string
	KCTitle   string
	Topic     string // KC title, else its description
	Question  string // next-step prompt, virtual tasks only
	Distance  *int
	Radius    int
	Condition string
	TempF     *float64
	HotF      float64
	Open      lookup.OpenStatus
	Fee       lookup.FeeStatus
}

// TaskText renders one kind of task.
type TaskText struct {
	Title       func(f Facts) string
	Description func(f Facts) string
	Notes       func(f Facts) string
}

// Templates is one language's set of task texts.
type Templates struct {
	Virtual        TaskText
	Indoor         TaskText
	OutdoorObserve TaskText
	OutdoorGuided  TaskText
	Fallback       TaskText
}

var templates = map[string]Templates{
	"es": {
		Virtual: TaskText{
			Title: func(f Facts) string {
				return "Exploración virtual: " + orDefault(f.KCTitle, "material")
			},
			Description: func(f Facts) string {
				return fmt.Sprintf("Revisa el recurso en línea y responde: %s Incluye 1 evidencia (captura o cita del material) en tu respuesta.", f.Question)
			},
			Notes: func(f Facts) string {
				return fmt.Sprintf("Distance is %s m. Regla: al superar %d m (o sin recurso cercano), se omiten clima/acceso y se asigna tarea virtual.",
					distanceText(f.Distance), f.Radius)
			},
		},
		Indoor: TaskText{
			Title: func(f Facts) string {
				return "Exploración interior en " + f.Site
			},
			Description: func(f Facts) string {
				return fmt.Sprintf("Entra a %s (%s). Busca un elemento que conecte con «%s» y explica en 3 oraciones qué ves, qué significa y cómo se relaciona con el tema.",
					f.Site, f.Address, f.Topic)
			},
			Notes: func(f Facts) string {
				return fmt.Sprintf("Within %d m (%s m). Clima='%s', temp=%s. Recurso accesible y gratuito.",
					f.Radius, distanceText(f.Distance), f.Condition, tempText(f.TempF))
			},
		},
		OutdoorObserve: TaskText{
			Title: func(f Facts) string {
				return "Observación exterior de " + f.Site
			},
			Description: func(f Facts) string {
				return fmt.Sprintf("Desde el exterior de %s, identifica dos rasgos visibles relacionados con «%s». Describe su función y semejanza/diferencia en 3–4 oraciones.",
					f.Site, f.Topic)
			},
			Notes: func(f Facts) string {
				return fmt.Sprintf("Within %d m (%s m). Clima='%s', temp=%s (≤%s°F). Interior no accesible (cerrado o con costo).",
					f.Radius, distanceText(f.Distance), f.Condition, tempText(f.TempF), formatFloat(f.HotF))
			},
		},
		OutdoorGuided: TaskText{
			Title: func(f Facts) string {
				return "Recorrido guiado al aire libre en " + f.Site
			},
			Description: func(f Facts) string {
				return fmt.Sprintf("Rodea %s. Toma dos notas o ejemplos de detalles que expliquen «%s». Compara su función y relación con el tema en 4 oraciones.",
					f.Site, f.Topic)
			},
			Notes: func(f Facts) string {
				return fmt.Sprintf("Within %d m (%s m). Clima='%s', temp=%s (≤%s°F). Recurso accesible y gratuito.",
					f.Radius, distanceText(f.Distance), f.Condition, tempText(f.TempF), formatFloat(f.HotF))
			},
		},
		Fallback: TaskText{
			Title: func(f Facts) string {
				return "Exploración virtual (resguardo): " + orDefault(f.KCTitle, "material")
			},
			Description: func(f Facts) string {
				return fmt.Sprintf("Revisa el recurso en línea y responde: %s Incluye 1 evidencia (captura o cita del material).", f.Question)
			},
			Notes: func(f Facts) string {
				return fmt.Sprintf("Within %d m (%s m), pero condiciones insuficientes (clima='%s', temp=%s, open='%s', fee='%s').",
					f.Radius, distanceText(f.Distance), f.Condition, tempText(f.TempF), f.Open, f.Fee)
			},
		},
	},
	"en": {
		Virtual: TaskText{
			Title: func(f Facts) string {
				return "Virtual exploration: " + orDefault(f.KCTitle, "material")
			},
			Description: func(f Facts) string {
				return fmt.Sprintf("Review the online resource and answer: %s Include 1 piece of evidence (a screenshot or a quote from the material) in your answer.", f.Question)
			},
			Notes: func(f Facts) string {
				return fmt.Sprintf("Distance is %s m. Rule: beyond %d m (or with no nearby resource) weather and access are skipped and a virtual task is assigned.",
					distanceText(f.Distance), f.Radius)
			},
		},
		Indoor: TaskText{
			Title: func(f Facts) string {
				return "Indoor exploration at " + f.Site
			},
			Description: func(f Facts) string {
				return fmt.Sprintf("Go into %s (%s). Find one element that connects to «%s» and explain in 3 sentences what you see, what it means and how it relates to the topic.",
					f.Site, f.Address, f.Topic)
			},
			Notes: func(f Facts) string {
				return fmt.Sprintf("Within %d m (%s m). Weather='%s', temp=%s. Site is open and free.",
					f.Radius, distanceText(f.Distance), f.Condition, tempText(f.TempF))
			},
		},
		OutdoorObserve: TaskText{
			Title: func(f Facts) string {
				return "Outdoor observation of " + f.Site
			},
			Description: func(f Facts) string {
				return fmt.Sprintf("From outside %s, identify two visible features related to «%s». Describe their function and how they are alike or different in 3–4 sentences.",
					f.Site, f.Topic)
			},
			Notes: func(f Facts) string {
				return fmt.Sprintf("Within %d m (%s m). Weather='%s', temp=%s (≤%s°F). Interior not accessible (closed or paid).",
					f.Radius, distanceText(f.Distance), f.Condition, tempText(f.TempF), formatFloat(f.HotF))
			},
		},
		OutdoorGuided: TaskText{
			Title: func(f Facts) string {
				return "Guided outdoor walk at " + f.Site
			},
			Description: func(f Facts) string {
				return fmt.Sprintf("Walk around %s. Take two notes or examples of details that explain «%s». Compare their function and relation to the topic in 4 sentences.",
					f.Site, f.Topic)
			},
			Notes: func(f Facts) string {
				return fmt.Sprintf("Within %d m (%s m). Weather='%s', temp=%s (≤%s°F). Site is open and free.",
					f.Radius, distanceText(f.Distance), f.Condition, tempText(f.TempF), formatFloat(f.HotF))
			},
		},
		Fallback: TaskText{
			Title: func(f Facts) string {
				return "Virtual exploration (fallback): " + orDefault(f.KCTitle, "material")
			},
			Description: func(f Facts) string {
				return fmt.Sprintf("Review the online resource and answer: %s Include 1 piece of evidence (a screenshot or a quote from the material).", f.Question)
			},
			Notes: func(f Facts) string {
				return fmt.Sprintf("Within %d m (%s m), but conditions are insufficient (weather='%s', temp=%s, open='%s', fee='%s').",
					f.Radius, distanceText(f.Distance), f.Condition, tempText(f.TempF), f.Open, f.Fee)
			},
		},
	},
}

// TemplatesFor returns the task texts for a language tag, resolved the same
// way as next-step prompts.
func TemplatesFor(lang string) Templates {
	return templates[solo.ResolveLanguage(lang)]
}

func distanceText(d *int) string {
	if d == nil {
		return "unknown"
	}
	return strconv.Itoa(*d)
}

func tempText(t *float64) string {
	if t == nil {
		return "unknown"
	}
	return formatFloat(*t) + "°F"
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
