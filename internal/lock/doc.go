// Package lock 提供针对单个表格位置的独占访问作用域。
//
// 同一进程内按位置的规范化路径串行化；启用跨进程模式时，再通过 <location>.lock
// 文件上的 flock 与其他进程（例如命令行工具）互斥。作用域在所有退出路径上释放。
package lock
