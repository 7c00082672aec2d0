// Package docs registra la descripción OpenAPI servida en /swagger/*.
// Regenerar con: swag init -g cmd/api/main.go -o internal/docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {"tags": ["system"], "summary": "Health check", "responses": {"200": {"description": "ok"}}}
        },
        "/patients/{patientID}/grants": {
            "get": {"tags": ["grants"], "summary": "Listar grants activos del paciente",
                "parameters": [{"type": "string", "name": "patientID", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "403": {"description": "Forbidden"}}},
            "post": {"tags": ["grants"], "summary": "Otorgar acceso permanente",
                "parameters": [{"type": "string", "name": "patientID", "in": "path", "required": true}],
                "responses": {"201": {"description": "Created"}, "400": {"description": "Bad Request"}}}
        },
        "/grants/{grantID}/revoke": {
            "post": {"tags": ["grants"], "summary": "Revocar grant",
                "parameters": [{"type": "string", "name": "grantID", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}}
        },
        "/patients/{patientID}/temporary-access": {
            "get": {"tags": ["temporary-access"], "summary": "Listar permisos temporales",
                "parameters": [{"type": "string", "name": "patientID", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["temporary-access"], "summary": "Otorgar permiso temporal",
                "parameters": [{"type": "string", "name": "patientID", "in": "path", "required": true}],
                "responses": {"201": {"description": "Created"}}}
        },
        "/temporary-access/{permissionID}": {
            "get": {"tags": ["temporary-access"], "summary": "Ver permiso temporal",
                "parameters": [{"type": "string", "name": "permissionID", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}}
        },
        "/temporary-access/{permissionID}/revoke": {
            "post": {"tags": ["temporary-access"], "summary": "Revocar permiso temporal",
                "parameters": [{"type": "string", "name": "permissionID", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}}
        },
        "/patients/{patientID}/emergency-tokens": {
            "get": {"tags": ["emergency"], "summary": "Listar tokens de emergencia",
                "parameters": [{"type": "string", "name": "patientID", "in": "path", "required": true},
                    {"type": "boolean", "name": "active", "in": "query"}],
                "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["emergency"], "summary": "Emitir token de emergencia",
                "parameters": [{"type": "string", "name": "patientID", "in": "path", "required": true}],
                "responses": {"201": {"description": "Created"}}}
        },
        "/emergency/redeem": {
            "post": {"tags": ["emergency"], "summary": "Canjear token de emergencia",
                "responses": {"200": {"description": "OK"}, "403": {"description": "invalid token"}, "429": {"description": "Too Many Requests"}}}
        },
        "/patients/{patientID}/emergency-profile": {
            "get": {"tags": ["emergency"], "summary": "Perfil de emergencia",
                "parameters": [{"type": "string", "name": "patientID", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "403": {"description": "Forbidden"}}}
        },
        "/patients/{patientID}/access": {
            "get": {"tags": ["authorization"], "summary": "Consultar nivel de acceso",
                "parameters": [{"type": "string", "name": "patientID", "in": "path", "required": true},
                    {"type": "string", "name": "accessor_id", "in": "query"}],
                "responses": {"200": {"description": "OK"}}}
        },
        "/patients/{patientID}/audit": {
            "get": {"tags": ["audit"], "summary": "Rastro de auditoría del paciente",
                "parameters": [{"type": "string", "name": "patientID", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}}
        }
    }
}`

var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Patient Records Access API",
	Description:      "Grants, permisos temporales y acceso de emergencia a historias clínicas.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
