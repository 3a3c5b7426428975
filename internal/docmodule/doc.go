// Package docmodule 聚合各来源族（远程包、SCM checkout）的文档适配器，并提供统一的注册入口。
//
// 模块作者需要：
//  1. 在 internal/docmodule/<family>/ 目录下实现注册表构造与（可选的）按需准备逻辑；
//  2. 在 init() 中通过 MustRegister 注册模块元数据；
//  3. 保证文档产物遵循 library 包描述的磁盘布局，使 worker 进程与服务进程只通过文件系统协作。
//
// 启用哪些模块由配置中的 Families 决定，运行时不做类型判断。
package docmodule
