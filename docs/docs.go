// Package docs holds the OpenAPI document of the event ingest API.
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
        "/events": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Queues one extraction invocation for a sync unit",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Events"],
                "summary": "Submit invocation event",
                "parameters": [
                    {
                        "description": "Invocation event",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/domain.InvocationEvent"}
                    }
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/http.EventAcceptedResponse"}},
                    "400": {"description": "Invalid event", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "503": {"description": "Queue unavailable", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/tasks/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Returns the queue state of an invocation task",
                "produces": ["application/json"],
                "tags": ["Events"],
                "summary": "Get task",
                "parameters": [
                    {"type": "string", "description": "Task ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Task"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "404": {"description": "Task not found", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/queue/stats": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Events"],
                "summary": "Queue statistics",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/driven.QueueStats"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/health": {
            "get": {
                "description": "Pings the task queue and the configured stores",
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.HealthResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/http.HealthResponse"}}
                }
            }
        },
        "/version": {
            "get": {
                "description": "Returns the current API version",
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Get API version",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.VersionResponse"}}
                }
            }
        }
    },
    "definitions": {
        "domain.InvocationEvent": {
            "type": "object",
            "properties": {
                "event_type": {"type": "string", "example": "EXTRACTION_DATA_START"},
                "sync_unit_id": {"type": "string"},
                "mode": {"type": "string", "enum": ["INITIAL", "INCREMENTAL"]},
                "request_id": {"type": "string"}
            }
        },
        "domain.Task": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "type": {"type": "string"},
                "event": {"$ref": "#/definitions/domain.InvocationEvent"},
                "status": {"type": "string"},
                "attempts": {"type": "integer"},
                "max_attempts": {"type": "integer"},
                "error": {"type": "string"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"},
                "scheduled_for": {"type": "string"}
            }
        },
        "driven.QueueStats": {
            "type": "object",
            "properties": {
                "pending_count": {"type": "integer"},
                "processing_count": {"type": "integer"},
                "failed_count": {"type": "integer"},
                "scheduled_count": {"type": "integer"}
            }
        },
        "http.ErrorResponse": {
            "type": "object",
            "properties": {"error": {"type": "string", "example": "invalid request body"}}
        },
        "http.EventAcceptedResponse": {
            "type": "object",
            "properties": {
                "task_id": {"type": "string"},
                "status": {"type": "string", "example": "pending"},
                "event_type": {"type": "string"},
                "sync_unit_id": {"type": "string"}
            }
        },
        "http.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "example": "ok"},
                "checks": {"type": "object", "additionalProperties": {"type": "string"}}
            }
        },
        "http.VersionResponse": {
            "type": "object",
            "properties": {"version": {"type": "string", "example": "1.0.0"}}
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "JWT Bearer token. Format: \"Bearer {token}\"",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{"http", "https"},
	Title:            "Sercha Extractor API",
	Description:      "Accepts extraction invocation events and queues them for the worker.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
