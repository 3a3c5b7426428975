// Package fetch 负责把源码取到本地：SCM 工作树（git 通过 go-git，svn 通过命令行）
// 以及远程包归档（HTTP 下载后解包）。所有实现都是幂等的：目标目录已存在时执行更新而不是报错。
package fetch
