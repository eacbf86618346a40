package main

// General API documentation for swaggo. Run `swag init -g cmd/pointd/docs.go -o internal/httpapi/docs` to regenerate.
//
// @title           pointd API
// @version         1.0
// @description     HTTP inference server for a 2-D point binary classifier.
//
// @contact.name   pointd maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
