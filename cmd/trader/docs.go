package main

//go:generate swag init -g cmd/trader/main.go -o docs

// @title           Trader API
// @version         0.1.0
// @description     Unattended LSE equity trading core: orders, risk gate, positions and agent control.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
