// Package docs provides the OpenAPI documentation for the proposer API.
//
// Proposer API
//
//	@title			Proposer API
//	@version		1.0
//	@description	Analyzes uploaded documents against a proposal's existing sections and proposes merged content.
//	@termsOfService	http://swagger.io/terms/
//
//	@contact.name	API Support
//	@contact.url	https://github.com/jackzampolin/proposer
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@schemes	http https
package docs

//go:generate swag init -g ../cmd/proposer/serve.go -o . --outputTypes go --parseDependency --parseInternal
