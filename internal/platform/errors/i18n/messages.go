package i18n

// Error codes must match the codes defined in internal/platform/errors/codes.go.
// These are duplicated as strings to avoid an import cycle.
const (
	CodeUnknown            = "UNKNOWN"
	CodeValidation         = "VALIDATION"
	CodeNotFound           = "NOT_FOUND"
	CodeConstraint         = "CONSTRAINT"
	CodeStorageUnavailable = "STORAGE_UNAVAILABLE"
	CodeSerialization      = "SERIALIZATION"
)

var enUSMessages = map[Code]string{
	CodeUnknown: "An unexpected error occurred.",
	CodeValidation: `{{if .Field}}{{if .Max}}{{if .Min}}{{.Field}} must be between {{.Min}} and {{.Max}}.` +
		`{{else}}{{.Field}} must be at most {{.Max}} characters.{{end}}` +
		`{{else}}{{.Field}} is invalid.{{end}}{{else}}The request is invalid.{{end}}`,
	CodeNotFound:           `{{if .ID}}Pin {{.ID}} was not found.{{else}}The requested pin was not found.{{end}}`,
	CodeConstraint:         `{{if .PointID}}Pin {{.PointID}} does not exist.{{else}}The request conflicts with stored data.{{end}}`,
	CodeStorageUnavailable: "Storage is temporarily unavailable. Please try again.",
	CodeSerialization:      "Stored data could not be read.",
}

var ptBRMessages = map[Code]string{
	CodeUnknown: "Ocorreu um erro inesperado.",
	CodeValidation: `{{if .Field}}{{if .Max}}{{if .Min}}{{.Field}} deve estar entre {{.Min}} e {{.Max}}.` +
		`{{else}}{{.Field}} deve ter no máximo {{.Max}} caracteres.{{end}}` +
		`{{else}}{{.Field}} é inválido.{{end}}{{else}}A requisição é inválida.{{end}}`,
	CodeNotFound:           `{{if .ID}}O pin {{.ID}} não foi encontrado.{{else}}O pin solicitado não foi encontrado.{{end}}`,
	CodeConstraint:         `{{if .PointID}}O pin {{.PointID}} não existe.{{else}}A requisição conflita com os dados armazenados.{{end}}`,
	CodeStorageUnavailable: "O armazenamento está temporariamente indisponível. Tente novamente.",
	CodeSerialization:      "Os dados armazenados não puderam ser lidos.",
}
