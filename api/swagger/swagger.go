package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Theme Match API",
        "description": "Students-to-themes priority assignment backend",
        "version": "0.1.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Students", "description": "Student roster management"},
        {"name": "Themes", "description": "Themes and the main priority list"},
        {"name": "Specializations", "description": "Per-theme specialization lists"},
        {"name": "ML", "description": "External re-ranking integration"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"}
                }
            }
        },
        "/students": {
            "get": {
                "tags": ["Students"],
                "summary": "List students",
                "parameters": [
                    {"name": "name", "in": "query", "type": "string"},
                    {"name": "hardSkill", "in": "query", "type": "string"},
                    {"name": "background", "in": "query", "type": "string"},
                    {"name": "interests", "in": "query", "type": "string"},
                    {"name": "timeInWeek", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Students"],
                "summary": "Create student",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateStudentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{id}": {
            "get": {
                "tags": ["Students"],
                "summary": "Get student with placements",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Students"],
                "summary": "Update student",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateStudentRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Students"],
                "summary": "Delete student and its placements",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No content"}
                }
            }
        },
        "/themes": {
            "get": {
                "tags": ["Themes"],
                "summary": "List themes",
                "parameters": [
                    {"name": "name", "in": "query", "type": "string"},
                    {"name": "description", "in": "query", "type": "string"},
                    {"name": "author", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Themes"],
                "summary": "Create theme",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateThemeRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/themes/{themeId}/students": {
            "get": {
                "tags": ["Themes"],
                "summary": "Main priority list with student details",
                "parameters": [
                    {"name": "themeId", "in": "path", "required": true, "type": "string"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "onlyActive", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/themes/{themeId}/specializations/{name}/students": {
            "get": {
                "tags": ["Specializations"],
                "summary": "Specialization priority list with student details",
                "parameters": [
                    {"name": "themeId", "in": "path", "required": true, "type": "string"},
                    {"name": "name", "in": "path", "required": true, "type": "string"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "onlyActive", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Specializations"],
                "summary": "Replace specialization priority order",
                "parameters": [
                    {"name": "themeId", "in": "path", "required": true, "type": "string"},
                    {"name": "name", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/IDsPayload"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/themes/{themeId}/ml-sort-all": {
            "post": {
                "tags": ["ML"],
                "summary": "Re-rank every specialization via the scoring service",
                "parameters": [
                    {"name": "themeId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "CreateStudentRequest": {
            "type": "object",
            "required": ["name", "hard_skill", "background", "interests"],
            "properties": {
                "name": {"type": "string"},
                "hard_skill": {"type": "string"},
                "background": {"type": "string"},
                "interests": {"type": "string"},
                "time_in_week": {"type": "string"}
            }
        },
        "UpdateStudentRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "hard_skill": {"type": "string"},
                "background": {"type": "string"},
                "interests": {"type": "string"},
                "time_in_week": {"type": "string"}
            }
        },
        "CreateThemeRequest": {
            "type": "object",
            "required": ["name", "author"],
            "properties": {
                "name": {"type": "string"},
                "description": {"type": "string"},
                "author": {"type": "string"},
                "specializations": {"type": "array", "items": {"type": "string"}},
                "priority_students": {"type": "array", "items": {"type": "string"}}
            }
        },
        "IDsPayload": {
            "type": "object",
            "required": ["ids"],
            "properties": {
                "ids": {"type": "array", "items": {"type": "string"}}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
