// Package kindmodule 聚合各实体类型（海报、头像、合集封面）的图片管线元数据，并提供统一的注册入口。
//
// 新增实体类型需要：
//   1. 在 internal/kindmodule/<kind>/ 目录下声明元数据；
//   2. 通过本包暴露的 MustRegister 在 init() 中注册；
//   3. 在 config/modules.go 中匿名导入该包，使配置校验能识别该类型。
//
// 元数据决定封面子目录、默认缓存策略以及上游响应大小上限，诊断接口 /-/kinds 直接输出这些信息。
package kindmodule
