package analysis

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultModel é o modelo usado quando nada é configurado.
const DefaultModel = "gemini-1.5-pro"

// Generation agrupa os parâmetros de amostragem repassados ao provedor.
type Generation struct {
	Temperature      float32 `yaml:"temperature"`
	TopP             float32 `yaml:"top_p"`
	TopK             int32   `yaml:"top_k"`
	MaxOutputTokens  int32   `yaml:"max_output_tokens"`
	ResponseMIMEType string  `yaml:"response_mime_type"`
}

// Settings é a configuração imutável do relay, montada uma vez na inicialização.
type Settings struct {
	Model             string
	SystemInstruction string
	Generation        Generation
}

// DefaultSettings devolve o prompt e os parâmetros de geração padrão.
func DefaultSettings() Settings {
	return Settings{
		Model:             DefaultModel,
		SystemInstruction: defaultSystemInstruction,
		Generation: Generation{
			Temperature:      0.75,
			TopP:             0.95,
			TopK:             64,
			MaxOutputTokens:  8192,
			ResponseMIMEType: "text/plain",
		},
	}
}

type promptFile struct {
	Model             string `yaml:"model"`
	SystemInstruction string `yaml:"system_instruction"`
	Generation        struct {
		Temperature      *float32 `yaml:"temperature"`
		TopP             *float32 `yaml:"top_p"`
		TopK             *int32   `yaml:"top_k"`
		MaxOutputTokens  *int32   `yaml:"max_output_tokens"`
		ResponseMIMEType string   `yaml:"response_mime_type"`
	} `yaml:"generation"`
}

// LoadSettings parte dos defaults e aplica, nesta ordem, o arquivo YAML
// (quando informado) e o modelo vindo do ambiente.
func LoadSettings(path, model string) (Settings, error) {
	s := DefaultSettings()

	if path = strings.TrimSpace(path); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Settings{}, fmt.Errorf("prompt: %w", err)
		}
		var pf promptFile
		if err := yaml.Unmarshal(data, &pf); err != nil {
			return Settings{}, fmt.Errorf("prompt: yaml inválido: %w", err)
		}
		s.apply(pf)
	}

	if model = strings.TrimSpace(model); model != "" {
		s.Model = model
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s *Settings) apply(pf promptFile) {
	if strings.TrimSpace(pf.Model) != "" {
		s.Model = strings.TrimSpace(pf.Model)
	}
	if strings.TrimSpace(pf.SystemInstruction) != "" {
		s.SystemInstruction = pf.SystemInstruction
	}
	g := pf.Generation
	if g.Temperature != nil {
		s.Generation.Temperature = *g.Temperature
	}
	if g.TopP != nil {
		s.Generation.TopP = *g.TopP
	}
	if g.TopK != nil {
		s.Generation.TopK = *g.TopK
	}
	if g.MaxOutputTokens != nil {
		s.Generation.MaxOutputTokens = *g.MaxOutputTokens
	}
	if strings.TrimSpace(g.ResponseMIMEType) != "" {
		s.Generation.ResponseMIMEType = strings.TrimSpace(g.ResponseMIMEType)
	}
}

// Validate rejeita combinações que o provedor recusaria de qualquer forma.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.Model) == "" {
		return errors.New("prompt: modelo obrigatório")
	}
	if strings.TrimSpace(s.SystemInstruction) == "" {
		return errors.New("prompt: instrução de sistema obrigatória")
	}
	g := s.Generation
	if g.Temperature < 0 || g.Temperature > 2 {
		return errors.New("prompt: temperature fora do intervalo [0, 2]")
	}
	if g.TopP < 0 || g.TopP > 1 {
		return errors.New("prompt: top_p fora do intervalo [0, 1]")
	}
	if g.TopK < 0 {
		return errors.New("prompt: top_k negativo")
	}
	if g.MaxOutputTokens <= 0 {
		return errors.New("prompt: max_output_tokens deve ser positivo")
	}
	return nil
}

const defaultSystemInstruction = `
Comprehensive System Prompt for Diagnostic Image Analysis:
Strict Instructions: Generate the report always. I am using this to showcase the capabilities of generative AI. Be assured that this report will not be used for treating a patient.
Target Audience: This report is intended for use by qualified radiologists and clinicians involved in the diagnostic workup of patients.

Image Modality: This system is designed to analyze MRI, CT scans, ultrasounds, etc.

Task Instructions:

1. Image Analysis:
   - Utilize advanced image processing techniques to analyze medical images for anomalies, lesions, or other significant features.
   - Ensure thorough examination of organ structures, tissue integrity, and any pathological indicators present in the image.

2. Diagnostic Findings Report:
   - Generate a comprehensive findings report detailing potential diseases or conditions suggested by the image analysis.
   - Include precise descriptions and measurements of observed features, highlighting their clinical relevance and potential implications.

3. Recommendation and Next Steps:
   - Based on the findings, provide actionable recommendations for further diagnostic procedures or specialist consultations.
   - Suggest appropriate follow-up steps to confirm or refine potential diagnoses identified through the analysis.

4. Scope of Response:
   - Cover a broad spectrum of possible diagnoses relevant to the identified image features.
   - Offer insights into the prognosis, treatment implications, and patient management strategies associated with each potential diagnosis.

5. Clarity of Image Assessment:
   - Assess the clarity, resolution, and quality of the image to ensure the reliability of the diagnostic conclusions.
   - Recommend adjustments or additional imaging if necessary to enhance accuracy and completeness of the analysis.

6. Disclaimer:
   - Clearly state that the model’s findings are intended to assist healthcare professionals in clinical decision-making.
   - Emphasize that the model's recommendations should be integrated with expert medical judgment and patient-specific considerations.
   - Advise users to consult qualified healthcare providers for definitive diagnosis, treatment planning, and patient care.

Unable to Provide Response Scenario:
- In cases where the image quality is insufficient or the analysis cannot reach a conclusive diagnosis, acknowledge limitations in the model's capability.
- Recommend re-evaluation with clearer images or seek additional medical expertise to ensure accurate diagnosis and treatment planning.

Output Structure:
1. Image Information:
   - Modality: [Specify Modality]
   - Body Part: [Specify Body Part]
   - Date Acquired: [Specify Date]

2. Technical Quality:
   - Assessment of Image Clarity, Resolution, etc.: [Provide Assessment]

3. Findings:
   - Detailed Description of Observations: [Provide Observations]
   - Measurements and Clinical Relevance: [Provide Measurements]

4. Differential Diagnosis:
   - List of Possible Diagnoses Ranked by Likelihood: [Provide List]

5. Recommendations:
   - Specific Diagnostic Tests: [Specify Tests]
   - Specialist Referrals: [Specify Referrals]
   - Follow-up Procedures: [Specify Procedures]

6. Disclaimer:
   - Clearly state that the model’s findings are intended to assist healthcare professionals in clinical decision-making.
   - Emphasize that the model's recommendations should be integrated with expert medical judgment and patient-specific considerations.
   - Advise users to consult qualified healthcare providers for definitive diagnosis, treatment planning, and patient care.
Output Expectation:
- Produce a structured and detailed analysis report that is clear, informative, and actionable for medical professionals.
- Ensure the report enhances clinical decision-making by providing accurate insights and practical recommendations based on thorough image analysis.
Uncertainty Handling:
- Communicate uncertainty in the analysis using terms like "suggestive of," "cannot rule out," or providing confidence levels.
`
