// Package docs registers the OpenAPI document served at /api/v1/swagger.json
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"},
        "ApiKeyAuth": {"type": "apiKey", "name": "X-API-Key", "in": "header"}
    },
    "paths": {
        "/health": {
            "get": {"tags": ["System"], "summary": "Health check", "responses": {"200": {"description": "OK"}}}
        },
        "/commissions/distribute": {
            "post": {
                "security": [{"ApiKeyAuth": []}],
                "tags": ["Commissions"],
                "summary": "Distribute commission for a completed transaction",
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/dto.DistributeCommissionRequest"}}],
                "responses": {
                    "200": {"description": "Already distributed"},
                    "201": {"description": "Distributed"},
                    "400": {"description": "Validation error"},
                    "422": {"description": "Config or beneficiary not found"},
                    "500": {"description": "Distribution failed"}
                }
            }
        },
        "/admin/commissions/pending": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["Settlement"], "summary": "List pending commissions",
                "parameters": [{"in": "query", "name": "page", "type": "integer"}, {"in": "query", "name": "page_size", "type": "integer"}],
                "responses": {"200": {"description": "OK"}}}
        },
        "/admin/commissions/mark-paid": {
            "post": {"security": [{"BearerAuth": []}], "tags": ["Settlement"], "summary": "Mark pending commissions paid",
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/dto.MarkCommissionsPaidRequest"}}],
                "responses": {"200": {"description": "OK"}}}
        },
        "/admin/commissions/mark-failed": {
            "post": {"security": [{"BearerAuth": []}], "tags": ["Settlement"], "summary": "Mark pending commissions failed",
                "responses": {"200": {"description": "OK"}}}
        },
        "/admin/commissions/export": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["Settlement"], "summary": "Export pending commissions as XLSX",
                "produces": ["application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"],
                "responses": {"200": {"description": "Spreadsheet"}}}
        },
        "/admin/users/{id}/commissions": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["Settlement"], "summary": "List commissions of a user",
                "parameters": [{"in": "path", "name": "id", "required": true, "type": "integer"}],
                "responses": {"200": {"description": "OK"}}}
        },
        "/admin/users/{id}/wallet/reconcile": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["Settlement"], "summary": "Compare wallet balance with ledger sum",
                "parameters": [{"in": "path", "name": "id", "required": true, "type": "integer"}],
                "responses": {"200": {"description": "OK"}}}
        },
        "/admin/commission-configs": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["Configs"], "summary": "List commission configs", "responses": {"200": {"description": "OK"}}},
            "post": {"security": [{"BearerAuth": []}], "tags": ["Configs"], "summary": "Create commission config", "responses": {"201": {"description": "Created"}}}
        },
        "/admin/commission-configs/{id}/deactivate": {
            "post": {"security": [{"BearerAuth": []}], "tags": ["Configs"], "summary": "Deactivate commission config",
                "parameters": [{"in": "path", "name": "id", "required": true, "type": "integer"}],
                "responses": {"200": {"description": "OK"}}}
        },
        "/admin/incidents": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["Incidents"], "summary": "List distribution incidents",
                "parameters": [{"in": "query", "name": "status", "type": "string"}],
                "responses": {"200": {"description": "OK"}}}
        },
        "/admin/incidents/{id}/retry": {
            "post": {"security": [{"BearerAuth": []}], "tags": ["Incidents"], "summary": "Retry a failed distribution",
                "parameters": [{"in": "path", "name": "id", "required": true, "type": "integer"}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}, "409": {"description": "Already resolved"}}}
        }
    },
    "definitions": {
        "dto.DistributeCommissionRequest": {
            "type": "object",
            "required": ["service_type", "transaction_ref", "amount", "customer_id"],
            "properties": {
                "service_type": {"type": "string"},
                "transaction_ref": {"type": "integer"},
                "amount": {"type": "string", "example": "100.00"},
                "provider": {"type": "string"},
                "customer_id": {"type": "integer"}
            }
        },
        "dto.MarkCommissionsPaidRequest": {
            "type": "object",
            "required": ["ids"],
            "properties": {"ids": {"type": "array", "items": {"type": "integer"}}}
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Commission Engine API",
	Description:      "Commission calculation and distribution across the agent hierarchy.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
