// Package control 实现代理与被代理应用之间的命令通道。
// SKIP_WAITING / GET_VERSION / CLEAR_CACHE 以 JSON 消息经管理端口的 WebSocket
// 或 HTTP POST 到达，回复沿原连接返回；Hub 负责把 SW_ACTIVATED、
// BACKGROUND_SYNC_COMPLETE 等生命周期通知推送给所有已连接客户端。
package control
